package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/planora/forecast-recon/internal/domain"
	"github.com/planora/forecast-recon/internal/pivot"
	"github.com/planora/forecast-recon/internal/recon"
	"github.com/planora/forecast-recon/internal/session"
	"github.com/planora/forecast-recon/internal/tabular"
)

var (
	// ErrPivotMissing is returned when a stage runs before its input stage:
	// a pivot must exist before an edited pivot can be applied.
	ErrPivotMissing = errors.New("no pivot generated for this session")
	// ErrNoResult is returned when the final output is requested before an
	// edited pivot has been reconciled.
	ErrNoResult = errors.New("no reconciled result for this session")
)

// ReconService orchestrates the reconciliation workflow over the session
// store. The engine stages themselves are pure; the service owns session
// state and file handling only.
type ReconService struct {
	store session.Store
}

func NewReconService(store session.Store) *ReconService {
	return &ReconService{store: store}
}

// CreateSession parses the uploaded granular files concurrently, merges
// their records, and stores a new session. Per-row issues are collected into
// the session diagnostics, never silently dropped.
func (s *ReconService) CreateSession(ctx context.Context, files []*domain.UploadedFile) (*session.Session, error) {
	var (
		mu      sync.Mutex
		records []domain.GranularRecord
		diags   domain.Diagnostics
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		file := file
		g.Go(func() error {
			recs, fileDiags, err := parseGranularFile(file.Path)
			if err != nil {
				return fmt.Errorf("error processing file %s: %w", file.Filename, err)
			}

			mu.Lock()
			records = append(records, recs...)
			diags.Merge(fileDiags)
			mu.Unlock()

			log.Info().Str("file", file.Filename).Int("rows", len(recs)).Msg("parsed granular file")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sess := session.New()
	sess.Records = records
	sess.Diagnostics = diags
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return sess, nil
}

// GetSession fetches a session by id.
func (s *ReconService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.store.Get(ctx, id)
}

// GeneratePivot builds the aggregate table for a session and stores its
// rendered grid so the session survives serialization.
func (s *ReconService) GeneratePivot(ctx context.Context, id string, g domain.Granularity, groupBySite bool) (*domain.AggregateTable, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	table, err := pivot.Build(sess.Records, g, groupBySite)
	if err != nil {
		return nil, err
	}

	sess.Granularity = g
	sess.GroupBySite = groupBySite
	sess.PivotGrid = tabular.AggregateGrid(table)
	sess.Result = nil
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return table, nil
}

// PivotTable rebuilds the typed aggregate table from the stored grid.
func (s *ReconService) PivotTable(ctx context.Context, id string) (*domain.AggregateTable, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.HasPivot() {
		return nil, ErrPivotMissing
	}
	return tabular.ParseAggregateRows(sess.PivotGrid)
}

// ApplyEditedPivot parses the edited aggregate table a planner uploaded and
// runs the full reverse pass (diff, redistribute, reconcile) against the
// session's original records. The result, including any new-combination
// warnings, is stored on the session and returned for acknowledgment.
func (s *ReconService) ApplyEditedPivot(ctx context.Context, id string, r io.Reader, filename string) (*recon.Result, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.HasPivot() {
		return nil, ErrPivotMissing
	}

	var edited *domain.AggregateTable
	if isXLSX(filename) {
		edited, err = tabular.ReadAggregateXLSX(r)
	} else {
		edited, err = tabular.ReadAggregate(r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse edited pivot: %w", err)
	}

	result, err := recon.Apply(sess.Records, edited)
	if err != nil {
		return nil, err
	}

	for _, nc := range result.NewCombinations {
		log.Warn().
			Str("site", nc.Key.Site.String()).
			Str("product", nc.Key.Product).
			Str("bucket", nc.Bucket.Label).
			Float64("qty", nc.Qty).
			Msg("new combination introduced that does not exist in the original data")
	}

	sess.Result = result
	sess.Diagnostics.Merge(result.Diagnostics)
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return result, nil
}

// Output returns the reconciled record set, sorted for a stable download.
func (s *ReconService) Output(ctx context.Context, id string) ([]domain.GranularRecord, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Result == nil {
		return nil, ErrNoResult
	}

	records := make([]domain.GranularRecord, len(sess.Result.Records))
	copy(records, sess.Result.Records)
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.SiteCode != b.SiteCode {
			return a.SiteCode < b.SiteCode
		}
		if a.LocationCode != b.LocationCode {
			return a.LocationCode < b.LocationCode
		}
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		return a.Date.Before(b.Date)
	})

	return records, nil
}

func parseGranularFile(path string) ([]domain.GranularRecord, domain.Diagnostics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Diagnostics{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if isXLSX(path) {
		return tabular.ReadGranularXLSX(f)
	}
	return tabular.ReadGranular(f)
}

func isXLSX(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}
