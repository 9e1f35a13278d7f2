package session

import (
	"context"

	"github.com/meridianhq/conduct/id"
)

// Credit adjusts one participant's accumulators as part of a step commit.
type Credit struct {
	ParticipantID id.ParticipantID `json:"participant_id"`
	Points        int64            `json:"points"`
	Bonus         int64            `json:"bonus"`
}

// Effect is the committed outcome of a guarded operation: participant
// credits plus the aggregate pool delta. The store applies an Effect and
// the step advance as one atomic unit — either both commit or neither.
type Effect struct {
	Credits   []Credit `json:"credits"`
	PoolDelta int64    `json:"pool_delta"`
}

// Store defines the persistence contract for step sessions.
type Store interface {
	// CreateSession persists the session unless one already exists for
	// its identity key. Returns the stored session and true when a new
	// session was created, or the existing session and false otherwise.
	CreateSession(ctx context.Context, s *Session) (*Session, bool, error)

	// GetSession retrieves a session by identity key.
	// Returns conduct.ErrSessionNotFound if absent.
	GetSession(ctx context.Context, identityKey string) (*Session, error)

	// CommitStep atomically applies the effect and advances the step
	// counter from expectedStep to expectedStep+1. The update must be a
	// single conditional write: if the stored step no longer equals
	// expectedStep the commit fails with conduct.ErrStepMismatch (stale
	// caller) or conduct.ErrStepConflict (lost race) and applies nothing.
	// Returns the updated session on success.
	CommitStep(ctx context.Context, identityKey string, expectedStep int64, effect *Effect) (*Session, error)
}
