package hooks

import (
	"context"
	"time"

	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Session lifecycle hooks
// ──────────────────────────────────────────────────

// SessionCreated is called after a new session is persisted.
type SessionCreated interface {
	OnSessionCreated(ctx context.Context, s *session.Session) error
}

// StepCommitted is called after a guarded operation commits and the step
// counter advances.
type StepCommitted interface {
	OnStepCommitted(ctx context.Context, s *session.Session, op string, step int64) error
}

// StepRejected is called when a guarded operation is rejected (stale
// step, lost commit race, throttled, or operation error).
type StepRejected interface {
	OnStepRejected(ctx context.Context, identityKey, op string, err error) error
}

// ──────────────────────────────────────────────────
// Flow lifecycle hooks
// ──────────────────────────────────────────────────

// StageStarted is called when a flow stage begins running.
type StageStarted interface {
	OnStageStarted(ctx context.Context, flowID id.FlowID, stageID string) error
}

// StageCompleted is called after a flow stage completes successfully.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, flowID id.FlowID, stageID string, elapsed time.Duration) error
}

// StageFailed is called when a flow stage fails.
type StageFailed interface {
	OnStageFailed(ctx context.Context, flowID id.FlowID, stageID string, err error) error
}

// FlowCompleted is called after the final stage of a flow completes.
type FlowCompleted interface {
	OnFlowCompleted(ctx context.Context, flowID id.FlowID, elapsed time.Duration) error
}

// FlowFailed is called when a flow fails terminally.
type FlowFailed interface {
	OnFlowFailed(ctx context.Context, flowID id.FlowID, err error) error
}

// FlowCancelled is called when a flow is cancelled mid-stage.
type FlowCancelled interface {
	OnFlowCancelled(ctx context.Context, flowID id.FlowID, stageID string) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// PlacementAppended is called after a placement record is appended to a
// resource's position ledger.
type PlacementAppended interface {
	OnPlacementAppended(ctx context.Context, p *ledger.Placement) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
