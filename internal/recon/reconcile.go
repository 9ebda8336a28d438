package recon

import (
	"math"
	"strings"
	"time"

	"github.com/planora/forecast-recon/internal/bucket"
	"github.com/planora/forecast-recon/internal/domain"
	"github.com/planora/forecast-recon/internal/pivot"
)

// cellKey identifies one aggregate contribution in the final output: at most
// one contribution (kept originals, redistributed rows, or a synthesized row)
// may exist per cellKey. Rows inside a contribution may still be multiple.
type cellKey struct {
	site    domain.SiteKey
	product string
	start   time.Time
}

// Reconcile assembles the final granular record set from the originals and
// the detected changes. Order matters for the last-write-wins guarantee:
// untouched originals first, then redistributed rows for Changed cells, then
// synthesized rows for New cells; a later contribution for the same
// (site, location, product, bucket-start) replaces an earlier one.
//
// Rows missing a required field, or with a blank product after trimming, are
// dropped and recorded in the returned diagnostics.
func Reconcile(original []domain.GranularRecord, changes []domain.ChangeRecord, g domain.Granularity, groupBySite bool, descriptions map[domain.GroupingKey]string) ([]domain.GranularRecord, []domain.NewCombination, domain.Diagnostics) {
	type touchedCell struct {
		key domain.GroupingKey
		b   domain.Bucket
	}

	changed := make(map[touchedCell]domain.ChangeRecord)
	var newCells []domain.ChangeRecord
	for _, ch := range changes {
		switch ch.Kind {
		case domain.ChangeChanged:
			changed[touchedCell{ch.Key, ch.Bucket}] = ch
		case domain.ChangeNew:
			newCells = append(newCells, ch)
		}
	}

	// Partition originals: rows belonging to a Changed cell feed the
	// redistributor, everything else passes through untouched.
	cellRows := make(map[touchedCell][]domain.GranularRecord)
	var untouched []domain.GranularRecord
	for _, rec := range original {
		cell := touchedCell{pivot.KeyFor(rec, groupBySite), bucket.For(rec.Date, g)}
		if _, ok := changed[cell]; ok {
			cellRows[cell] = append(cellRows[cell], rec)
		} else {
			untouched = append(untouched, rec)
		}
	}

	var (
		order         []cellKey
		contributions = make(map[cellKey][]domain.GranularRecord)
	)
	add := func(rows []domain.GranularRecord) {
		for _, r := range rows {
			ck := cellKey{
				site:    domain.SiteKey{SiteCode: r.SiteCode, LocationCode: r.LocationCode},
				product: r.Product,
				start:   bucket.For(r.Date, g).Start,
			}
			if _, ok := contributions[ck]; !ok {
				order = append(order, ck)
			}
			contributions[ck] = append(contributions[ck], r)
		}
	}
	replace := func(rows []domain.GranularRecord) {
		seen := make(map[cellKey]bool)
		for _, r := range rows {
			ck := cellKey{
				site:    domain.SiteKey{SiteCode: r.SiteCode, LocationCode: r.LocationCode},
				product: r.Product,
				start:   bucket.For(r.Date, g).Start,
			}
			if _, ok := contributions[ck]; !ok {
				order = append(order, ck)
			}
			if !seen[ck] {
				// Last write wins: this change's rows displace whatever
				// was appended earlier for the same cell.
				contributions[ck] = nil
				seen[ck] = true
			}
			contributions[ck] = append(contributions[ck], r)
		}
	}

	add(untouched)

	var warnings []domain.NewCombination
	for _, ch := range changes {
		if ch.Kind != domain.ChangeChanged {
			continue
		}
		cell := touchedCell{ch.Key, ch.Bucket}
		desc := descriptions[cell.key]
		if desc == "" {
			for _, r := range cellRows[cell] {
				if r.Description != "" {
					desc = r.Description
					break
				}
			}
		}
		out := Redistribute(cellRows[cell], ch.NewQty, cell.key, cell.b, desc)
		for _, r := range out {
			if r.Synthesized {
				warnings = append(warnings, domain.NewCombination{Key: cell.key, Bucket: cell.b, Qty: ch.NewQty})
				break
			}
		}
		replace(out)
	}

	for _, ch := range newCells {
		warnings = append(warnings, domain.NewCombination{Key: ch.Key, Bucket: ch.Bucket, Qty: ch.NewQty})
		replace([]domain.GranularRecord{{
			SiteCode:     ch.Key.Site.SiteCode,
			LocationCode: ch.Key.Site.LocationCode,
			Product:      ch.Key.Product,
			Description:  descriptions[ch.Key],
			Date:         ch.Bucket.Start,
			Qty:          ch.NewQty,
			Synthesized:  true,
		}})
	}

	var diags domain.Diagnostics
	result := make([]domain.GranularRecord, 0, len(original))
	for _, ck := range order {
		for _, r := range contributions[ck] {
			if reason := invalidRow(r); reason != "" {
				diags.DroppedRows = append(diags.DroppedRows, domain.RowIssue{
					Field:  reason,
					Value:  r.Product,
					Reason: "row dropped from reconciled output: " + reason,
				})
				continue
			}
			result = append(result, r)
		}
	}

	return result, warnings, diags
}

func invalidRow(r domain.GranularRecord) string {
	switch {
	case strings.TrimSpace(r.Product) == "":
		return "blank product"
	case r.SiteCode == "":
		return "missing site code"
	case r.LocationCode == "":
		return "missing location code"
	case r.Date.IsZero():
		return "missing date"
	case math.IsNaN(r.Qty) || math.IsInf(r.Qty, 0):
		return "invalid quantity"
	}
	return ""
}
