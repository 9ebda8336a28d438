package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/planora/forecast-recon/internal/domain"
)

// readSheetRows reads the first sheet of an XLSX stream into raw rows.
func readSheetRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// ReadGranularXLSX parses granular records from the first sheet of an XLSX
// workbook.
func ReadGranularXLSX(r io.Reader) ([]domain.GranularRecord, domain.Diagnostics, error) {
	rows, err := readSheetRows(r)
	if err != nil {
		return nil, domain.Diagnostics{}, err
	}
	return ParseGranularRows(rows)
}

// ReadAggregateXLSX parses an edited aggregate grid from the first sheet of
// an XLSX workbook.
func ReadAggregateXLSX(r io.Reader) (*domain.AggregateTable, error) {
	rows, err := readSheetRows(r)
	if err != nil {
		return nil, err
	}
	return ParseAggregateRows(rows)
}

// WriteAggregateXLSX writes an aggregate table as a single-sheet XLSX
// workbook, the format the planner's spreadsheet tooling round-trips.
func WriteAggregateXLSX(w io.Writer, table *domain.AggregateTable) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range AggregateGrid(table) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
