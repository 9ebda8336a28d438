package domain

import (
	"fmt"
	"strings"
)

// SchemaError reports a required column missing or a column count mismatch in
// an input table. It aborts the stage that detects it.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s table: %s", e.Table, e.Reason)
}

// DateParseError reports a record date that cannot be parsed as YYYYMMDD.
// The offending row is excluded from aggregation, never coerced.
type DateParseError struct {
	Row   int
	Value string
}

func (e *DateParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: cannot parse date %q as YYYYMMDD", e.Row, e.Value)
	}
	return fmt.Sprintf("cannot parse date %q as YYYYMMDD", e.Value)
}

// AmbiguousBucketFormatError reports aggregate column labels that are neither
// month- nor day-shaped. Fatal for the diff stage.
type AmbiguousBucketFormatError struct {
	Labels []string
}

func (e *AmbiguousBucketFormatError) Error() string {
	return fmt.Sprintf("aggregate column labels are neither month- nor day-shaped: %s",
		strings.Join(e.Labels, ", "))
}
