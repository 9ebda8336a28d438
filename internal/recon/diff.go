// Package recon implements the reverse-distribution reconciliation engine:
// detecting which aggregate cells a planner edited, rescaling the underlying
// granular rows to match the new totals, and assembling the final record set.
package recon

import (
	"fmt"
	"math"

	"github.com/planora/forecast-recon/internal/domain"
	"github.com/planora/forecast-recon/internal/pivot"
)

// Tolerance under which two quantities are considered equal. Edits smaller
// than this are treated as no-ops.
const Tolerance = 1e-6

// Diff compares an edited aggregate table against the reference aggregate
// recomputed from the original records, using the same bucketing and grouping
// rules that produced the edited table's shape. Every (key, bucket) cell of
// the edited table is classified:
//
//   - absent from the reference and nonzero: New
//   - present with |edited - reference| > Tolerance: Changed, carrying the
//     reference value as OldQty
//   - otherwise: Unchanged
//
// Cells absent from the reference but zero are Unchanged: a dense edited grid
// has explicit zero cells for every new key row, and a zero in a combination
// that never existed is not an edit.
func Diff(original []domain.GranularRecord, edited *domain.AggregateTable) ([]domain.ChangeRecord, error) {
	reference, err := pivot.Build(original, edited.Granularity, edited.GroupBySite)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild reference aggregate: %w", err)
	}

	refLabels := make(map[string]bool, len(reference.Buckets))
	for _, b := range reference.Buckets {
		refLabels[b.Label] = true
	}

	changes := make([]domain.ChangeRecord, 0, len(edited.Keys)*len(edited.Buckets))
	for _, key := range edited.Keys {
		for _, b := range edited.Buckets {
			editedQty := edited.Value(key, b.Label)
			change := domain.ChangeRecord{Key: key, Bucket: b, NewQty: editedQty}

			if reference.HasKey(key) && refLabels[b.Label] {
				refQty := reference.Value(key, b.Label)
				change.OldQty = refQty
				change.HasOld = true
				if math.Abs(editedQty-refQty) > Tolerance {
					change.Kind = domain.ChangeChanged
				} else {
					change.Kind = domain.ChangeUnchanged
				}
			} else if math.Abs(editedQty) > Tolerance {
				change.Kind = domain.ChangeNew
			} else {
				change.Kind = domain.ChangeUnchanged
			}

			changes = append(changes, change)
		}
	}

	return changes, nil
}
