// Package pivot builds the dense aggregate table a planner edits: one row
// per grouping key, one column per time bucket, quantities summed.
package pivot

import (
	"fmt"
	"sort"

	"github.com/planora/forecast-recon/internal/bucket"
	"github.com/planora/forecast-recon/internal/domain"
)

// Build groups records by (site?, product) and time bucket and sums their
// quantities. The resulting grid is dense: every key observed anywhere in the
// input has an explicit cell (possibly 0) for every bucket observed anywhere
// in the input, so the edited table the planner receives has no holes.
func Build(records []domain.GranularRecord, g domain.Granularity, groupBySite bool) (*domain.AggregateTable, error) {
	switch g {
	case domain.GranularityDay, domain.GranularityWeek, domain.GranularityMonth:
	default:
		return nil, fmt.Errorf("unknown granularity %q", g)
	}

	table := &domain.AggregateTable{
		Granularity:  g,
		GroupBySite:  groupBySite,
		Cells:        make(map[domain.GroupingKey]map[string]float64),
		Descriptions: make(map[domain.GroupingKey]string),
	}

	buckets := make(map[string]domain.Bucket)
	for _, rec := range records {
		b := bucket.For(rec.Date, g)
		buckets[b.Label] = b

		key := KeyFor(rec, groupBySite)
		row, ok := table.Cells[key]
		if !ok {
			row = make(map[string]float64)
			table.Cells[key] = row
			table.Keys = append(table.Keys, key)
		}
		row[b.Label] += rec.Qty

		// First non-empty description wins; it rides along unaggregated.
		if table.Descriptions[key] == "" && rec.Description != "" {
			table.Descriptions[key] = rec.Description
		}
	}

	for _, b := range buckets {
		table.Buckets = append(table.Buckets, b)
	}
	sort.Slice(table.Buckets, func(i, j int) bool {
		return table.Buckets[i].Start.Before(table.Buckets[j].Start)
	})
	sort.Slice(table.Keys, func(i, j int) bool {
		a, b := table.Keys[i], table.Keys[j]
		if a.Site != b.Site {
			if a.Site.SiteCode != b.Site.SiteCode {
				return a.Site.SiteCode < b.Site.SiteCode
			}
			return a.Site.LocationCode < b.Site.LocationCode
		}
		return a.Product < b.Product
	})

	// Zero-fill so every key has a value for every bucket.
	for _, key := range table.Keys {
		row := table.Cells[key]
		for _, b := range table.Buckets {
			if _, ok := row[b.Label]; !ok {
				row[b.Label] = 0
			}
		}
	}

	return table, nil
}

// KeyFor is the grouping rule used by Build; other stages use it so records
// group identically everywhere.
func KeyFor(rec domain.GranularRecord, groupBySite bool) domain.GroupingKey {
	key := domain.GroupingKey{Product: rec.Product}
	if groupBySite {
		key.Site = domain.SiteKey{SiteCode: rec.SiteCode, LocationCode: rec.LocationCode}
	}
	return key
}
