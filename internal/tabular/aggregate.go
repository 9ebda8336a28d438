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

const (
	siteHeader        = "Site"
	productHeader     = "Product"
	descriptionHeader = "Description"
	grandTotalHeader  = "Grand Total"
)

// ReadAggregate parses an edited aggregate grid from CSV.
func ReadAggregate(r io.Reader) (*domain.AggregateTable, error) {
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
			return nil, fmt.Errorf("error reading aggregate csv: %w", err)
		}
		rows = append(rows, row)
	}

	return ParseAggregateRows(rows)
}

// ParseAggregateRows parses an already-tokenized aggregate grid. The header
// row names the key columns (Site iff the table was grouped by site, Product,
// optional Description) followed by one bucket label per column; a trailing
// Grand Total column is stripped before any reverse computation so it cannot
// be misread as a bucket. The bucket shape is inferred once for the whole
// table.
func ParseAggregateRows(rows [][]string) (*domain.AggregateTable, error) {
	if len(rows) == 0 {
		return nil, &domain.SchemaError{Table: "aggregate", Reason: "table is empty"}
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, &domain.SchemaError{Table: "aggregate", Reason: "header has fewer than 2 columns"}
	}

	col := 0
	groupBySite := strings.EqualFold(strings.TrimSpace(header[col]), siteHeader)
	if groupBySite {
		col++
	}
	if col >= len(header) || !strings.EqualFold(strings.TrimSpace(header[col]), productHeader) {
		return nil, &domain.SchemaError{Table: "aggregate", Reason: "missing Product column"}
	}
	productCol := col
	col++

	descCol := -1
	if col < len(header) && strings.EqualFold(strings.TrimSpace(header[col]), descriptionHeader) {
		descCol = col
		col++
	}

	firstBucketCol := col
	var labels []string
	for ; col < len(header); col++ {
		label := normalizeLabel(header[col])
		if strings.EqualFold(label, grandTotalHeader) {
			break
		}
		if label == "" {
			continue
		}
		labels = append(labels, label)
	}

	granularity, err := bucket.InferGranularity(labels)
	if err != nil {
		return nil, err
	}

	table := &domain.AggregateTable{
		Granularity:  granularity,
		GroupBySite:  groupBySite,
		Cells:        make(map[domain.GroupingKey]map[string]float64),
		Descriptions: make(map[domain.GroupingKey]string),
	}
	for _, label := range labels {
		b, err := bucket.ParseLabel(label, granularity)
		if err != nil {
			return nil, err
		}
		table.Buckets = append(table.Buckets, b)
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		if len(row) < firstBucketCol {
			return nil, &domain.SchemaError{
				Table:  "aggregate",
				Reason: fmt.Sprintf("row %d has %d columns, want at least %d", i+1, len(row), firstBucketCol),
			}
		}

		key := domain.GroupingKey{Product: strings.TrimSpace(row[productCol])}
		if groupBySite {
			key.Site = splitSite(row[0])
		}
		if descCol >= 0 && descCol < len(row) {
			table.Descriptions[key] = strings.TrimSpace(row[descCol])
		}

		if !table.HasKey(key) {
			table.Keys = append(table.Keys, key)
			table.Cells[key] = make(map[string]float64)
		}
		cells := table.Cells[key]

		for j, b := range table.Buckets {
			idx := firstBucketCol + j
			var raw string
			if idx < len(row) {
				raw = strings.TrimSpace(row[idx])
			}
			if raw == "" {
				// Spreadsheets leave zero cells blank.
				cells[b.Label] = 0
				continue
			}
			qty, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &domain.SchemaError{
					Table:  "aggregate",
					Reason: fmt.Sprintf("row %d, column %q: value %q is not numeric", i+1, b.Label, raw),
				}
			}
			cells[b.Label] = qty
		}
	}

	return table, nil
}

// WriteAggregate writes an aggregate table as CSV, including the derived
// Grand Total column for the planner's convenience.
func WriteAggregate(w io.Writer, table *domain.AggregateTable) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	for _, row := range AggregateGrid(table) {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing aggregate csv: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// AggregateGrid renders a table into a 2D grid of strings, shared by the CSV
// and XLSX writers.
func AggregateGrid(table *domain.AggregateTable) [][]string {
	hasDescriptions := false
	for _, d := range table.Descriptions {
		if d != "" {
			hasDescriptions = true
			break
		}
	}

	var header []string
	if table.GroupBySite {
		header = append(header, siteHeader)
	}
	header = append(header, productHeader)
	if hasDescriptions {
		header = append(header, descriptionHeader)
	}
	for _, b := range table.Buckets {
		header = append(header, b.Label)
	}
	header = append(header, grandTotalHeader)

	grid := [][]string{header}
	for _, key := range table.Keys {
		var row []string
		if table.GroupBySite {
			row = append(row, key.Site.String())
		}
		row = append(row, key.Product)
		if hasDescriptions {
			row = append(row, table.Descriptions[key])
		}
		for _, b := range table.Buckets {
			row = append(row, formatQty(table.Value(key, b.Label)))
		}
		row = append(row, formatQty(table.GrandTotal(key)))
		grid = append(grid, row)
	}

	return grid
}

// splitSite splits the rendered "SITE-LOCATION" cell at the first dash. The
// display form is lossy for codes containing a dash; internal comparisons
// always use the structural SiteKey, never this string.
func splitSite(cell string) domain.SiteKey {
	parts := strings.SplitN(strings.TrimSpace(cell), "-", 2)
	key := domain.SiteKey{SiteCode: parts[0]}
	if len(parts) == 2 {
		key.LocationCode = parts[1]
	}
	return key
}

// normalizeLabel strips spreadsheet datetime noise from a bucket label, e.g.
// "2024-01-01 00:00:00" read back from an xlsx cell.
func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, " 00:00:00")
	return label
}
