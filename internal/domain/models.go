package domain

import (
	"strings"
	"time"
)

// Granularity selects the time bucket used for aggregation.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity maps a user-supplied string to a Granularity.
func ParseGranularity(s string) (Granularity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "date", "daily":
		return GranularityDay, true
	case "week", "weekly":
		return GranularityWeek, true
	case "month", "monthly":
		return GranularityMonth, true
	}
	return "", false
}

// GranularRecord is one observed or forecast quantity for a product at a
// site/location on a specific day. Synthesized marks rows fabricated by the
// engine for edited cells that had no original rows.
type GranularRecord struct {
	SiteCode     string
	LocationCode string
	Product      string
	Description  string
	Date         time.Time
	Qty          float64
	Synthesized  bool
}

// SiteKey identifies a site/location pair. It is compared structurally so a
// code containing the display separator cannot collide with another pair.
type SiteKey struct {
	SiteCode     string
	LocationCode string
}

// String renders the site the way planners see it in the grid.
func (s SiteKey) String() string {
	return s.SiteCode + "-" + s.LocationCode
}

// IsZero reports whether no site is set (product-only grouping).
func (s SiteKey) IsZero() bool {
	return s.SiteCode == "" && s.LocationCode == ""
}

// GroupingKey identifies one aggregate row. Site is the zero value when the
// table is grouped by product only. The key is a value type usable directly
// as a map key.
type GroupingKey struct {
	Site    SiteKey
	Product string
}

// Bucket is one canonical time interval column in an aggregate table.
type Bucket struct {
	Label string
	Start time.Time
}

// AggregateTable is a dense pivot: one row per GroupingKey, one column per
// bucket, zero-filled for combinations absent from the input. Descriptions
// carries the first non-empty description seen per key; it is informational
// and never participates in the grouping arithmetic.
type AggregateTable struct {
	Granularity  Granularity
	GroupBySite  bool
	Keys         []GroupingKey
	Buckets      []Bucket
	Cells        map[GroupingKey]map[string]float64
	Descriptions map[GroupingKey]string
}

// Value returns the cell value for key and bucket label (0 for absent cells,
// which a dense table should not have).
func (t *AggregateTable) Value(key GroupingKey, label string) float64 {
	if row, ok := t.Cells[key]; ok {
		return row[label]
	}
	return 0
}

// HasKey reports whether the table has a row for key.
func (t *AggregateTable) HasKey(key GroupingKey) bool {
	_, ok := t.Cells[key]
	return ok
}

// GrandTotal sums a row across all buckets. It is derived on demand and is
// never stored as a column, so reverse processing cannot misread it as a
// bucket.
func (t *AggregateTable) GrandTotal(key GroupingKey) float64 {
	var sum float64
	for _, b := range t.Buckets {
		sum += t.Value(key, b.Label)
	}
	return sum
}

// ChangeKind classifies an edited aggregate cell against the reference.
type ChangeKind string

const (
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeChanged   ChangeKind = "changed"
	ChangeNew       ChangeKind = "new"
)

// ChangeRecord is the change detector's verdict for one (key, bucket) cell.
// HasOld is false for New cells, where no reference value exists.
type ChangeRecord struct {
	Key    GroupingKey
	Bucket Bucket
	OldQty float64
	HasOld bool
	NewQty float64
	Kind   ChangeKind
}

// NewCombination is a (key, bucket) pair present in the edited aggregate but
// absent from the original data. It must be surfaced to the caller before the
// synthesized row is included in the final output.
type NewCombination struct {
	Key    GroupingKey
	Bucket Bucket
	Qty    float64
}

// UploadedFile is a file handed to the service for processing.
type UploadedFile struct {
	Filename string
	Path     string
	Size     int64
}
