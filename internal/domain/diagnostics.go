package domain

// RowIssue records one row-level problem found while parsing or reconciling.
type RowIssue struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Diagnostics collects row-level issues across pipeline stages. Rows are
// filtered, never silently dropped: every exclusion leaves a trace here.
type Diagnostics struct {
	BadDates    []RowIssue `json:"bad_dates,omitempty"`
	InvalidQty  []RowIssue `json:"invalid_qty,omitempty"`
	DroppedRows []RowIssue `json:"dropped_rows,omitempty"`
}

// Merge appends the issues from other into d.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.BadDates = append(d.BadDates, other.BadDates...)
	d.InvalidQty = append(d.InvalidQty, other.InvalidQty...)
	d.DroppedRows = append(d.DroppedRows, other.DroppedRows...)
}

// Empty reports whether no issues were recorded.
func (d *Diagnostics) Empty() bool {
	return len(d.BadDates) == 0 && len(d.InvalidQty) == 0 && len(d.DroppedRows) == 0
}

// Total returns the number of recorded issues.
func (d *Diagnostics) Total() int {
	return len(d.BadDates) + len(d.InvalidQty) + len(d.DroppedRows)
}
