package bucket

import (
	"strings"
	"time"

	"github.com/planora/forecast-recon/internal/domain"
)

const (
	dayLabelFormat   = "2006-01-02"
	monthLabelFormat = "2006-01"
	rawDateFormat    = "20060102"
)

// ParseDate parses a granular record date. The raw value is normalized to the
// 8-digit YYYYMMDD form first: surrounding whitespace is trimmed and shorter
// all-digit values are left-padded with zeros, matching how the upstream
// export truncates leading zeros.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if n := len(s); n > 0 && n < 8 {
		s = strings.Repeat("0", 8-n) + s
	}
	t, err := time.ParseInLocation(rawDateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, &domain.DateParseError{Value: raw}
	}
	return t, nil
}

// FormatDate renders a date back into the upstream YYYYMMDD form.
func FormatDate(t time.Time) string {
	return t.Format(rawDateFormat)
}

// For assigns a date to its canonical bucket for the given granularity.
func For(date time.Time, g domain.Granularity) domain.Bucket {
	switch g {
	case domain.GranularityWeek:
		// ISO week starting Monday: back up to the most recent Monday.
		offset := (int(date.Weekday()) + 6) % 7
		start := date.AddDate(0, 0, -offset)
		return domain.Bucket{Label: start.Format(dayLabelFormat), Start: start}
	case domain.GranularityMonth:
		start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		return domain.Bucket{Label: start.Format(monthLabelFormat), Start: start}
	default:
		return domain.Bucket{Label: date.Format(dayLabelFormat), Start: date}
	}
}

// ParseLabel parses an aggregate column label of a known shape back into a
// bucket.
func ParseLabel(label string, g domain.Granularity) (domain.Bucket, error) {
	format := dayLabelFormat
	if g == domain.GranularityMonth {
		format = monthLabelFormat
	}
	start, err := time.ParseInLocation(format, strings.TrimSpace(label), time.UTC)
	if err != nil {
		return domain.Bucket{}, &domain.AmbiguousBucketFormatError{Labels: []string{label}}
	}
	return For(start, g), nil
}

// InferGranularity decides the bucket shape of a whole aggregate table from
// its column labels. Detection is uniform across the table, not per cell: if
// any label carries a day component (length > 7, i.e. a second "-"), the
// table is day/week-shaped, otherwise month-shaped. Day-shaped tables whose
// labels all fall on a Monday are treated as week buckets so weekly pivots
// round-trip. Labels that parse under neither shape are fatal.
func InferGranularity(labels []string) (domain.Granularity, error) {
	if len(labels) == 0 {
		return "", &domain.AmbiguousBucketFormatError{Labels: labels}
	}

	dayShaped := false
	for _, label := range labels {
		if len(strings.TrimSpace(label)) > 7 {
			dayShaped = true
			break
		}
	}

	if !dayShaped {
		for _, label := range labels {
			if _, err := time.ParseInLocation(monthLabelFormat, strings.TrimSpace(label), time.UTC); err != nil {
				return "", &domain.AmbiguousBucketFormatError{Labels: labels}
			}
		}
		return domain.GranularityMonth, nil
	}

	allMonday := true
	for _, label := range labels {
		t, err := time.ParseInLocation(dayLabelFormat, strings.TrimSpace(label), time.UTC)
		if err != nil {
			return "", &domain.AmbiguousBucketFormatError{Labels: labels}
		}
		if t.Weekday() != time.Monday {
			allMonday = false
		}
	}
	if allMonday {
		return domain.GranularityWeek, nil
	}
	return domain.GranularityDay, nil
}
