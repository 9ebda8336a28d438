package recon

import (
	"github.com/planora/forecast-recon/internal/domain"
)

// Result is the outcome of one full reverse pass: the reconciled record set
// plus everything the caller must see before trusting it.
type Result struct {
	Records         []domain.GranularRecord
	Unchanged       int
	Changed         int
	New             int
	NewCombinations []domain.NewCombination
	Diagnostics     domain.Diagnostics
}

// Apply runs diff, redistribution and reconciliation in order against an
// edited aggregate table. The stages are pure; Apply only threads one stage's
// output into the next.
func Apply(original []domain.GranularRecord, edited *domain.AggregateTable) (*Result, error) {
	changes, err := Diff(original, edited)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, ch := range changes {
		switch ch.Kind {
		case domain.ChangeUnchanged:
			res.Unchanged++
		case domain.ChangeChanged:
			res.Changed++
		case domain.ChangeNew:
			res.New++
		}
	}

	res.Records, res.NewCombinations, res.Diagnostics = Reconcile(
		original, changes, edited.Granularity, edited.GroupBySite, edited.Descriptions)

	return res, nil
}
