package recon

import (
	"github.com/planora/forecast-recon/internal/domain"
)

// Redistribute rescales the granular rows of one edited cell so their sum
// equals newQty, preserving each row's share of the original total (and with
// it the day-of-week / day-of-month pattern inside the bucket).
//
// When the original total is zero (no rows, or all rows zero) and newQty is
// nonzero, there is no distribution to preserve: exactly one new row is
// synthesized at the bucket's canonical start date, marked Synthesized so the
// caller can surface it as a new combination rather than merge it silently.
//
// A negative newQty is scaled like any other value.
func Redistribute(rows []domain.GranularRecord, newQty float64, key domain.GroupingKey, b domain.Bucket, description string) []domain.GranularRecord {
	var total float64
	for _, r := range rows {
		total += r.Qty
	}

	if total != 0 {
		out := make([]domain.GranularRecord, len(rows))
		for i, r := range rows {
			r.Qty = r.Qty / total * newQty
			out[i] = r
		}
		return out
	}

	if newQty == 0 {
		return nil
	}

	return []domain.GranularRecord{{
		SiteCode:     key.Site.SiteCode,
		LocationCode: key.Site.LocationCode,
		Product:      key.Product,
		Description:  description,
		Date:         b.Start,
		Qty:          newQty,
		Synthesized:  true,
	}}
}
