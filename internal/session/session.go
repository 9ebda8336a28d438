// Package session holds the transient state of one reconciliation workflow:
// the uploaded granular records, the generated pivot, and the reconciled
// result. Sessions are TTL-bound scratch space, not record persistence; both
// backends expire them.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planora/forecast-recon/internal/config"
	"github.com/planora/forecast-recon/internal/domain"
	"github.com/planora/forecast-recon/internal/recon"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Session is the state of one upload → pivot → edit → reconcile workflow.
// The pivot is kept as its rendered grid so the session serializes cleanly;
// the typed table is rebuilt on demand.
type Session struct {
	ID          string                  `json:"id"`
	CreatedAt   time.Time               `json:"created_at"`
	Records     []domain.GranularRecord `json:"records"`
	Diagnostics domain.Diagnostics      `json:"diagnostics"`
	Granularity domain.Granularity      `json:"granularity,omitempty"`
	GroupBySite bool                    `json:"group_by_site"`
	PivotGrid   [][]string              `json:"pivot_grid,omitempty"`
	Result      *recon.Result           `json:"result,omitempty"`
}

// New creates an empty session with a fresh id.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// HasPivot reports whether a pivot has been generated for this session.
func (s *Session) HasPivot() bool {
	return len(s.PivotGrid) > 0
}

// Store is the transient session backend.
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// NewStore builds the configured session backend: in-memory by default,
// Redis when SESSION_BACKEND=redis.
func NewStore(cfg config.SessionConfig) (Store, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(ttl), nil
	case "redis":
		return NewRedisStore(cfg, ttl)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
