package bucket_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora/forecast-recon/internal/bucket"
	"github.com/planora/forecast-recon/internal/domain"
)

func TestParseDate(t *testing.T) {
	d, err := bucket.ParseDate("20240105")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), d)
}

func TestParseDate_PadsShortValues(t *testing.T) {
	// Upstream exports strip leading zeros; the parser restores them.
	d, err := bucket.ParseDate("240105")
	require.NoError(t, err)
	assert.Equal(t, 24, d.Year())
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 5, d.Day())
}

func TestParseDate_Invalid(t *testing.T) {
	for _, raw := range []string{"", "not-a-date", "20241305", "2024-01-05"} {
		_, err := bucket.ParseDate(raw)
		require.Error(t, err, "raw=%q", raw)

		var parseErr *domain.DateParseError
		assert.ErrorAs(t, err, &parseErr)
	}
}

func TestFor_Day(t *testing.T) {
	date := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	b := bucket.For(date, domain.GranularityDay)
	assert.Equal(t, "2024-03-15", b.Label)
	assert.Equal(t, date, b.Start)
}

func TestFor_WeekStartsMonday(t *testing.T) {
	tests := []struct {
		date  string
		start string
	}{
		{"2024-01-05", "2024-01-01"}, // Friday backs up to Monday
		{"2024-01-01", "2024-01-01"}, // Monday stays put
		{"2024-01-07", "2024-01-01"}, // Sunday belongs to the preceding Monday
		{"2024-03-03", "2024-02-26"}, // week start crosses a month boundary
	}

	for _, tt := range tests {
		date, err := time.Parse("2006-01-02", tt.date)
		require.NoError(t, err)

		b := bucket.For(date.UTC(), domain.GranularityWeek)
		assert.Equal(t, tt.start, b.Label, "date=%s", tt.date)
		assert.Equal(t, time.Monday, b.Start.Weekday())
	}
}

func TestFor_Month(t *testing.T) {
	date := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	b := bucket.For(date, domain.GranularityMonth)
	assert.Equal(t, "2024-02", b.Label)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), b.Start)
}

func TestInferGranularity(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   domain.Granularity
	}{
		{"month labels", []string{"2024-01", "2024-02"}, domain.GranularityMonth},
		{"day labels", []string{"2024-01-01", "2024-01-02"}, domain.GranularityDay},
		{"all mondays means weeks", []string{"2024-01-01", "2024-01-08", "2024-01-15"}, domain.GranularityWeek},
		{"one non-monday means days", []string{"2024-01-01", "2024-01-09"}, domain.GranularityDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bucket.InferGranularity(tt.labels)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferGranularity_DetectionIsUniform(t *testing.T) {
	// A single day-shaped label makes the whole table day/week-shaped, so a
	// month-shaped label in the same header is a format error, not a
	// per-cell decision.
	_, err := bucket.InferGranularity([]string{"2024-01-02", "2024-02"})
	require.Error(t, err)

	var formatErr *domain.AmbiguousBucketFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestInferGranularity_Unparseable(t *testing.T) {
	for _, labels := range [][]string{
		{},
		{"garbage"},
		{"2024-13"},
		{"Grand Total"},
	} {
		_, err := bucket.InferGranularity(labels)
		require.Error(t, err, "labels=%v", labels)
	}
}

func TestParseLabel_RoundTrip(t *testing.T) {
	b, err := bucket.ParseLabel("2024-03", domain.GranularityMonth)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", b.Label)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), b.Start)

	b, err = bucket.ParseLabel("2024-01-01", domain.GranularityWeek)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", b.Label)
	assert.Equal(t, time.Monday, b.Start.Weekday())
}
