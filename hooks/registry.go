package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type sessionCreatedEntry struct {
	name string
	hook SessionCreated
}

type stepCommittedEntry struct {
	name string
	hook StepCommitted
}

type stepRejectedEntry struct {
	name string
	hook StepRejected
}

type stageStartedEntry struct {
	name string
	hook StageStarted
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type stageFailedEntry struct {
	name string
	hook StageFailed
}

type flowCompletedEntry struct {
	name string
	hook FlowCompleted
}

type flowFailedEntry struct {
	name string
	hook FlowFailed
}

type flowCancelledEntry struct {
	name string
	hook FlowCancelled
}

type placementAppendedEntry struct {
	name string
	hook PlacementAppended
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	sessionCreated    []sessionCreatedEntry
	stepCommitted     []stepCommittedEntry
	stepRejected      []stepRejectedEntry
	stageStarted      []stageStartedEntry
	stageCompleted    []stageCompletedEntry
	stageFailed       []stageFailedEntry
	flowCompleted     []flowCompletedEntry
	flowFailed        []flowFailedEntry
	flowCancelled     []flowCancelledEntry
	placementAppended []placementAppendedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(SessionCreated); ok {
		r.sessionCreated = append(r.sessionCreated, sessionCreatedEntry{name, h})
	}
	if h, ok := e.(StepCommitted); ok {
		r.stepCommitted = append(r.stepCommitted, stepCommittedEntry{name, h})
	}
	if h, ok := e.(StepRejected); ok {
		r.stepRejected = append(r.stepRejected, stepRejectedEntry{name, h})
	}
	if h, ok := e.(StageStarted); ok {
		r.stageStarted = append(r.stageStarted, stageStartedEntry{name, h})
	}
	if h, ok := e.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := e.(StageFailed); ok {
		r.stageFailed = append(r.stageFailed, stageFailedEntry{name, h})
	}
	if h, ok := e.(FlowCompleted); ok {
		r.flowCompleted = append(r.flowCompleted, flowCompletedEntry{name, h})
	}
	if h, ok := e.(FlowFailed); ok {
		r.flowFailed = append(r.flowFailed, flowFailedEntry{name, h})
	}
	if h, ok := e.(FlowCancelled); ok {
		r.flowCancelled = append(r.flowCancelled, flowCancelledEntry{name, h})
	}
	if h, ok := e.(PlacementAppended); ok {
		r.placementAppended = append(r.placementAppended, placementAppendedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Session event emitters
// ──────────────────────────────────────────────────

// EmitSessionCreated notifies all extensions that implement SessionCreated.
func (r *Registry) EmitSessionCreated(ctx context.Context, s *session.Session) {
	for _, e := range r.sessionCreated {
		if err := e.hook.OnSessionCreated(ctx, s); err != nil {
			r.logHookError("OnSessionCreated", e.name, err)
		}
	}
}

// EmitStepCommitted notifies all extensions that implement StepCommitted.
func (r *Registry) EmitStepCommitted(ctx context.Context, s *session.Session, op string, step int64) {
	for _, e := range r.stepCommitted {
		if err := e.hook.OnStepCommitted(ctx, s, op, step); err != nil {
			r.logHookError("OnStepCommitted", e.name, err)
		}
	}
}

// EmitStepRejected notifies all extensions that implement StepRejected.
func (r *Registry) EmitStepRejected(ctx context.Context, identityKey, op string, opErr error) {
	for _, e := range r.stepRejected {
		if err := e.hook.OnStepRejected(ctx, identityKey, op, opErr); err != nil {
			r.logHookError("OnStepRejected", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Flow event emitters
// ──────────────────────────────────────────────────

// EmitStageStarted notifies all extensions that implement StageStarted.
func (r *Registry) EmitStageStarted(ctx context.Context, flowID id.FlowID, stageID string) {
	for _, e := range r.stageStarted {
		if err := e.hook.OnStageStarted(ctx, flowID, stageID); err != nil {
			r.logHookError("OnStageStarted", e.name, err)
		}
	}
}

// EmitStageCompleted notifies all extensions that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, flowID id.FlowID, stageID string, elapsed time.Duration) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, flowID, stageID, elapsed); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitStageFailed notifies all extensions that implement StageFailed.
func (r *Registry) EmitStageFailed(ctx context.Context, flowID id.FlowID, stageID string, stageErr error) {
	for _, e := range r.stageFailed {
		if err := e.hook.OnStageFailed(ctx, flowID, stageID, stageErr); err != nil {
			r.logHookError("OnStageFailed", e.name, err)
		}
	}
}

// EmitFlowCompleted notifies all extensions that implement FlowCompleted.
func (r *Registry) EmitFlowCompleted(ctx context.Context, flowID id.FlowID, elapsed time.Duration) {
	for _, e := range r.flowCompleted {
		if err := e.hook.OnFlowCompleted(ctx, flowID, elapsed); err != nil {
			r.logHookError("OnFlowCompleted", e.name, err)
		}
	}
}

// EmitFlowFailed notifies all extensions that implement FlowFailed.
func (r *Registry) EmitFlowFailed(ctx context.Context, flowID id.FlowID, flowErr error) {
	for _, e := range r.flowFailed {
		if err := e.hook.OnFlowFailed(ctx, flowID, flowErr); err != nil {
			r.logHookError("OnFlowFailed", e.name, err)
		}
	}
}

// EmitFlowCancelled notifies all extensions that implement FlowCancelled.
func (r *Registry) EmitFlowCancelled(ctx context.Context, flowID id.FlowID, stageID string) {
	for _, e := range r.flowCancelled {
		if err := e.hook.OnFlowCancelled(ctx, flowID, stageID); err != nil {
			r.logHookError("OnFlowCancelled", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitPlacementAppended notifies all extensions that implement PlacementAppended.
func (r *Registry) EmitPlacementAppended(ctx context.Context, p *ledger.Placement) {
	for _, e := range r.placementAppended {
		if err := e.hook.OnPlacementAppended(ctx, p); err != nil {
			r.logHookError("OnPlacementAppended", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block operations.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
