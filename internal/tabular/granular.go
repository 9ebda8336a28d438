// Package tabular reads and writes the two external table shapes: the
// positional granular record file and the aggregate (pivot) grid a planner
// edits.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/planora/forecast-recon/internal/bucket"
	"github.com/planora/forecast-recon/internal/domain"
)

// Granular input columns, fixed positional order. Description is optional:
// five-column files omit it.
const (
	colSiteCode = iota
	colLocationCode
	colProduct
	colDescription
	colDate
	colQty
	granularColumns = 6
)

// ReadGranular parses granular records from CSV. A header row is detected by
// probing the first row's date and quantity cells and skipped if present.
//
// Rows with an unparseable date are excluded and recorded in the returned
// diagnostics; an invalid quantity is coerced to 0 and likewise recorded.
// Fewer than five columns is a SchemaError and aborts the whole read.
func ReadGranular(r io.Reader) ([]domain.GranularRecord, domain.Diagnostics, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.Diagnostics{}, fmt.Errorf("error reading granular csv: %w", err)
		}
		rows = append(rows, row)
	}

	return ParseGranularRows(rows)
}

// ParseGranularRows parses an already-tokenized granular table. Shared by the
// CSV and XLSX entry points.
func ParseGranularRows(rows [][]string) ([]domain.GranularRecord, domain.Diagnostics, error) {
	var diags domain.Diagnostics
	records := make([]domain.GranularRecord, 0, len(rows))

	start := 0
	if len(rows) > 0 && looksLikeHeader(rows[0]) {
		start = 1
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		if len(row) < granularColumns-1 {
			return nil, domain.Diagnostics{}, &domain.SchemaError{
				Table:  "granular",
				Reason: fmt.Sprintf("row %d has %d columns, want %d or %d", i+1, len(row), granularColumns-1, granularColumns),
			}
		}

		rec := domain.GranularRecord{
			SiteCode:     strings.TrimSpace(row[colSiteCode]),
			LocationCode: strings.TrimSpace(row[colLocationCode]),
			Product:      strings.TrimSpace(row[colProduct]),
		}

		// Five-column files have no description; date and qty shift left.
		dateIdx, qtyIdx := colDate, colQty
		if len(row) == granularColumns-1 {
			dateIdx, qtyIdx = colDate-1, colQty-1
		} else {
			rec.Description = strings.TrimSpace(row[colDescription])
		}

		date, err := bucket.ParseDate(row[dateIdx])
		if err != nil {
			diags.BadDates = append(diags.BadDates, domain.RowIssue{
				Row:    i + 1,
				Field:  "date",
				Value:  row[dateIdx],
				Reason: "excluded: date is not YYYYMMDD",
			})
			continue
		}
		rec.Date = date

		qty, err := strconv.ParseFloat(strings.TrimSpace(row[qtyIdx]), 64)
		if err != nil {
			diags.InvalidQty = append(diags.InvalidQty, domain.RowIssue{
				Row:    i + 1,
				Field:  "qty",
				Value:  row[qtyIdx],
				Reason: "coerced to 0: not a number",
			})
			qty = 0
		}
		rec.Qty = qty

		records = append(records, rec)
	}

	return records, diags, nil
}

// WriteGranular writes the reconciled output table: headerless, fixed column
// order (SiteCode, LocationCode, Product, Description, Date, Qty), dates in
// the upstream YYYYMMDD form. The consuming system expects exactly this
// shape.
func WriteGranular(w io.Writer, records []domain.GranularRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	for _, rec := range records {
		row := []string{
			rec.SiteCode,
			rec.LocationCode,
			rec.Product,
			rec.Description,
			bucket.FormatDate(rec.Date),
			formatQty(rec.Qty),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing granular csv: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// looksLikeHeader reports whether the first row is a header: its trailing
// cells parse as neither a date nor a quantity.
func looksLikeHeader(row []string) bool {
	if len(row) < granularColumns-1 {
		return false
	}
	dateIdx, qtyIdx := colDate, colQty
	if len(row) == granularColumns-1 {
		dateIdx, qtyIdx = colDate-1, colQty-1
	}
	if _, err := bucket.ParseDate(row[dateIdx]); err == nil {
		return false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(row[qtyIdx]), 64); err == nil {
		return false
	}
	return true
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
