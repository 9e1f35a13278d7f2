// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
	"github.com/meridianhq/conduct/store"
)

// Ensure Store implements the composite interface at compile time.
var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. One mutex guards
// everything, which makes each operation trivially atomic — the same
// all-or-nothing discipline the SQL backends get from conditional writes.
type Store struct {
	mu sync.RWMutex

	sessions   map[string]*session.Session   // identityKey → session
	resources  map[string]*ledger.Resource   // resourceID → resource
	placements map[string][]ledger.Placement // resourceID → records ascending by seq
	seqs       map[string]int64              // resourceID → last assigned seq
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]*session.Session),
		resources:  make(map[string]*ledger.Resource),
		placements: make(map[string][]ledger.Placement),
		seqs:       make(map[string]int64),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// CreateSession persists the session unless its identity key is taken.
func (m *Store) CreateSession(_ context.Context, s *session.Session) (*session.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.IdentityKey]; ok {
		return existing.Clone(), false, nil
	}
	m.sessions[s.IdentityKey] = s.Clone()
	return s.Clone(), true, nil
}

// GetSession retrieves a session by identity key.
func (m *Store) GetSession(_ context.Context, identityKey string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[identityKey]
	if !ok {
		return nil, conduct.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// CommitStep applies the effect and advances the step counter in one
// critical section. The mutex makes the compare-and-set atomic; the
// validation pass before any mutation keeps the commit all-or-nothing.
func (m *Store) CommitStep(_ context.Context, identityKey string, expectedStep int64, effect *session.Effect) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[identityKey]
	if !ok {
		return nil, conduct.ErrSessionNotFound
	}
	if s.Step != expectedStep {
		if s.Step > expectedStep {
			return nil, conduct.ErrStepConflict
		}
		return nil, conduct.ErrStepMismatch
	}

	// Validate every credit target before mutating anything.
	if effect != nil {
		for _, c := range effect.Credits {
			if _, ok := s.Participant(c.ParticipantID); !ok {
				return nil, fmt.Errorf("participant %s: %w", c.ParticipantID, conduct.ErrParticipantNotFound)
			}
		}
		for _, c := range effect.Credits {
			p, _ := s.Participant(c.ParticipantID)
			p.Points += c.Points
			p.Bonus += c.Bonus
			p.Touch()
		}
		s.PoolBalance += effect.PoolDelta
	}

	s.Step = expectedStep + 1
	s.Touch()
	return s.Clone(), nil
}

// ──────────────────────────────────────────────────
// Ledger Store
// ──────────────────────────────────────────────────

// CreateResource persists a new resource.
func (m *Store) CreateResource(_ context.Context, r *ledger.Resource) (*ledger.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	cp.Tags = append([]string(nil), r.Tags...)
	m.resources[r.ID] = &cp

	out := cp
	out.Tags = append([]string(nil), cp.Tags...)
	return &out, nil
}

// GetResource loads a resource by id.
func (m *Store) GetResource(_ context.Context, resourceID string) (*ledger.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.resources[resourceID]
	if !ok {
		return nil, conduct.ErrResourceNotFound
	}
	cp := *r
	cp.Tags = append([]string(nil), r.Tags...)
	return &cp, nil
}

// AppendPlacement assigns the next per-resource sequence and persists
// the record. The sequence counter survives even hypothetical record
// removal, so assigned values strictly increase.
func (m *Store) AppendPlacement(_ context.Context, p *ledger.Placement) (*ledger.Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seqs[p.ResourceID]++
	cp := *p
	cp.Seq = m.seqs[p.ResourceID]
	cp.CreatedAt = time.Now().UTC()
	m.placements[p.ResourceID] = append(m.placements[p.ResourceID], cp)

	out := cp
	return &out, nil
}

// ListPlacements returns all records for the resource ascending by seq.
func (m *Store) ListPlacements(_ context.Context, resourceID string) ([]ledger.Placement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Records are appended in seq order under the same mutex that
	// assigns seqs, so the slice is already ascending.
	out := make([]ledger.Placement, len(m.placements[resourceID]))
	copy(out, m.placements[resourceID])
	return out, nil
}
