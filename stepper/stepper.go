package stepper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/stage"
)

// Sentinel errors for navigation and lifecycle misuse.
var (
	// ErrFlowDone is returned when navigating a completed, failed, or
	// cancelled flow.
	ErrFlowDone = errors.New("stepper: flow is no longer active")

	// ErrFirstStage is returned by Previous at stage index 0.
	ErrFirstStage = errors.New("stepper: already at first stage")

	// ErrIrreversible is returned by Previous once an irreversible stage
	// has been passed. Backward navigation across a committed external
	// write is fully blocked; there is no compensation path.
	ErrIrreversible = errors.New("stepper: cannot navigate back past an irreversible stage")

	// ErrStageRunning is returned by Next and Previous while a stage
	// runner is in flight.
	ErrStageRunning = errors.New("stepper: stage still running")
)

// ValidationError reports a failed stage precondition. It is recoverable:
// the flow stays at the current stage and the user corrects input.
type ValidationError struct {
	StageID string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stepper: stage %s precondition: %v", e.StageID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StageSpec declares one stage of a flow.
type StageSpec struct {
	// ID names the stage.
	ID string

	// Precondition gates advancing past this stage. It must be pure
	// validation over the flow context; it may record validated values
	// into the context but must not perform side effects. Nil means
	// always passes.
	Precondition func(fc *Context) error

	// Build constructs the stage's runner. Called by RunStage with the
	// stepper's stage config, so pacing and retry policy configured via
	// WithStageConfig reach the runner. Builders may adjust individual
	// fields before passing cfg to stage.NewRunner.
	Build func(ctx context.Context, fc *Context, cfg stage.Config) (*stage.Runner, error)

	// Irreversible marks a stage whose effect commits an external write
	// (a ledger append, a guarded credit). Once the flow moves past an
	// irreversible stage, Previous is blocked for the rest of the flow.
	Irreversible bool
}

// Definition is an ordered, fixed sequence of stages.
type Definition struct {
	Name   string
	Stages []StageSpec
}

// Emitter receives flow lifecycle events. Satisfied by the hooks
// registry via an adapter in the engine package to break the import
// cycle between stepper and hooks.
type Emitter interface {
	EmitStageStarted(ctx context.Context, flowID id.FlowID, stageID string)
	EmitStageCompleted(ctx context.Context, flowID id.FlowID, stageID string, elapsed time.Duration)
	EmitStageFailed(ctx context.Context, flowID id.FlowID, stageID string, err error)
	EmitFlowCompleted(ctx context.Context, flowID id.FlowID, elapsed time.Duration)
	EmitFlowFailed(ctx context.Context, flowID id.FlowID, err error)
	EmitFlowCancelled(ctx context.Context, flowID id.FlowID, stageID string)
}

type noopEmitter struct{}

func (noopEmitter) EmitStageStarted(context.Context, id.FlowID, string)                  {}
func (noopEmitter) EmitStageCompleted(context.Context, id.FlowID, string, time.Duration) {}
func (noopEmitter) EmitStageFailed(context.Context, id.FlowID, string, error)            {}
func (noopEmitter) EmitFlowCompleted(context.Context, id.FlowID, time.Duration)          {}
func (noopEmitter) EmitFlowFailed(context.Context, id.FlowID, error)                     {}
func (noopEmitter) EmitFlowCancelled(context.Context, id.FlowID, string)                 {}

// Callbacks are the host's view of flow outcomes. Every stage failure
// funnels into OnError; terminal completion hands the final context to
// OnComplete; Cancel invokes OnCancel after ephemeral state is dropped.
type Callbacks struct {
	OnComplete func(fc *Context)
	OnError    func(err error)
	OnCancel   func()
}

// Option configures a Stepper.
type Option func(*Stepper)

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(s *Stepper) { s.emitter = e }
}

// WithCallbacks sets the host callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Stepper) { s.callbacks = cb }
}

// WithStageConfig sets the stage runner config used when RunStage builds
// runners through specs that leave it to the stepper.
func WithStageConfig(cfg stage.Config) Option {
	return func(s *Stepper) { s.stageCfg = cfg }
}

// Stepper drives one flow instance through its stages. All navigation
// methods are safe for concurrent use; completions arriving after Cancel
// or after the flow moved on are ignored by the epoch guard.
type Stepper struct {
	id     id.FlowID
	def    Definition
	logger *slog.Logger

	emitter   Emitter
	callbacks Callbacks
	stageCfg  stage.Config

	mu        sync.Mutex
	fc        *Context
	index     int
	epoch     int64
	running   bool
	done      bool
	failed    bool
	startedAt time.Time
}

// New creates a stepper for the definition, positioned at stage 0.
func New(def Definition, logger *slog.Logger, opts ...Option) (*Stepper, error) {
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("stepper: definition %q has no stages", def.Name)
	}
	seen := make(map[string]struct{}, len(def.Stages))
	for _, spec := range def.Stages {
		if spec.ID == "" {
			return nil, fmt.Errorf("stepper: definition %q has a stage with no id", def.Name)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("stepper: definition %q has duplicate stage %q", def.Name, spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}

	s := &Stepper{
		id:        id.NewFlowID(),
		def:       def,
		logger:    logger,
		emitter:   noopEmitter{},
		fc:        NewContext(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the flow instance id.
func (s *Stepper) ID() id.FlowID { return s.id }

// Index returns the current stage index.
func (s *Stepper) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// StageID returns the current stage's id, or "" when the flow is done.
func (s *Stepper) StageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ""
	}
	return s.def.Stages[s.index].ID
}

// Completed reports whether the flow reached its terminal state
// successfully.
func (s *Stepper) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && !s.failed && s.fc != nil
}

// Context returns the flow context, or nil after Cancel.
func (s *Stepper) Context() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fc
}

// Next validates the current stage's precondition and advances to the
// next stage. A failed precondition returns a *ValidationError and the
// index does not move. Advancing past the final stage completes the flow.
// The precondition runs under the stepper lock so concurrent Next calls
// serialize and every stage's gate is evaluated exactly at its index;
// preconditions must therefore be fast, pure validation.
func (s *Stepper) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFlowDone
	}
	if s.running {
		return ErrStageRunning
	}

	spec := s.def.Stages[s.index]
	if spec.Precondition != nil {
		if err := spec.Precondition(s.fc); err != nil {
			return &ValidationError{StageID: spec.ID, Err: err}
		}
	}

	if s.index == len(s.def.Stages)-1 {
		s.completeLocked(ctx)
		return nil
	}
	s.index++
	return nil
}

// Previous moves back one stage. It is blocked once any stage at or
// before the current index is irreversible, and at the first stage.
func (s *Stepper) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFlowDone
	}
	if s.running {
		return ErrStageRunning
	}
	if s.index == 0 {
		return ErrFirstStage
	}
	for j := 0; j < s.index; j++ {
		if s.def.Stages[j].Irreversible {
			return ErrIrreversible
		}
	}
	s.index--
	return nil
}

// RunStage builds and launches the current stage's runner. The call
// returns once the runner is started; completion is delivered through
// autoAdvance (success) or the OnError callback (failure). Completions
// that arrive after Cancel or after the flow navigated elsewhere are
// discarded by the epoch guard.
func (s *Stepper) RunStage(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrFlowDone
	}
	if s.running {
		s.mu.Unlock()
		return ErrStageRunning
	}

	spec := s.def.Stages[s.index]
	if spec.Build == nil {
		s.mu.Unlock()
		return fmt.Errorf("stepper: stage %s has no builder", spec.ID)
	}

	fc := s.fc
	stageIndex := s.index
	epoch := s.epoch
	cfg := s.stageCfg
	s.running = true
	s.mu.Unlock()

	runner, err := spec.Build(ctx, fc, cfg)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("stepper: build stage %s: %w", spec.ID, err)
	}

	s.emitter.EmitStageStarted(ctx, s.id, spec.ID)
	s.logger.Info("stage started",
		slog.String("flow_id", s.id.String()),
		slog.String("stage_id", spec.ID),
		slog.Int("index", stageIndex),
	)

	start := time.Now()
	go func() {
		out, runErr := runner.Run(ctx)
		if runErr != nil {
			s.stageFailed(ctx, stageIndex, epoch, spec.ID, runErr)
			return
		}
		s.emitter.EmitStageCompleted(ctx, s.id, spec.ID, time.Since(start))
		s.autoAdvance(ctx, stageIndex, epoch, out)
	}()

	return nil
}

// autoAdvance is the stage completion handler. The stageIndex/epoch pair
// captured at launch must still match the stepper's state; otherwise the
// completion is stale (the flow was cancelled or navigated elsewhere)
// and nothing happens.
func (s *Stepper) autoAdvance(ctx context.Context, stageIndex int, epoch int64, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || epoch != s.epoch || stageIndex != s.index {
		s.logger.Debug("stale stage completion discarded",
			slog.String("flow_id", s.id.String()),
			slog.Int("stage_index", stageIndex),
			slog.Int64("epoch", epoch),
		)
		return
	}

	s.running = false
	spec := s.def.Stages[s.index]
	s.fc.setOutput(spec.ID, output)

	if s.index == len(s.def.Stages)-1 {
		s.completeLocked(ctx)
		return
	}
	s.index++
}

// stageFailed funnels a stage failure into the single OnError callback
// and terminates the flow, subject to the same staleness guard as
// autoAdvance.
func (s *Stepper) stageFailed(ctx context.Context, stageIndex int, epoch int64, stageID string, err error) {
	s.mu.Lock()
	if s.done || epoch != s.epoch || stageIndex != s.index {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.done = true
	s.failed = true
	s.epoch++
	cb := s.callbacks.OnError
	s.mu.Unlock()

	s.emitter.EmitStageFailed(ctx, s.id, stageID, err)
	s.emitter.EmitFlowFailed(ctx, s.id, err)
	s.logger.Error("stage failed",
		slog.String("flow_id", s.id.String()),
		slog.String("stage_id", stageID),
		slog.String("error", err.Error()),
	)

	if cb != nil {
		cb(err)
	}
}

// Cancel tears the flow down: the epoch advances so in-flight stage
// completions become stale, the ephemeral context is discarded, and
// OnCancel fires. Cancelling twice is a no-op.
func (s *Stepper) Cancel(ctx context.Context) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	stageID := s.def.Stages[s.index].ID
	s.done = true
	s.running = false
	s.epoch++
	s.fc = nil
	cb := s.callbacks.OnCancel
	s.mu.Unlock()

	s.emitter.EmitFlowCancelled(ctx, s.id, stageID)
	s.logger.Info("flow cancelled",
		slog.String("flow_id", s.id.String()),
		slog.String("stage_id", stageID),
	)

	if cb != nil {
		cb()
	}
}

// Reset re-arms a cancelled or failed flow for reuse: index 0, a fresh
// empty context, and a new epoch so completions from the previous run
// stay stale. Resetting a flow that is still active or already completed
// is an error.
func (s *Stepper) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		return fmt.Errorf("stepper: flow %s still active", s.id)
	}
	if !s.failed && s.fc != nil {
		return fmt.Errorf("stepper: flow %s already completed", s.id)
	}
	s.index = 0
	s.epoch++
	s.done = false
	s.failed = false
	s.running = false
	s.fc = NewContext()
	s.startedAt = time.Now()
	return nil
}

// completeLocked finishes the flow. Caller holds s.mu.
func (s *Stepper) completeLocked(ctx context.Context) {
	s.done = true
	s.running = false
	s.epoch++
	fc := s.fc
	cb := s.callbacks.OnComplete
	elapsed := time.Since(s.startedAt)

	// Emit and call back outside the lock.
	go func() {
		s.emitter.EmitFlowCompleted(ctx, s.id, elapsed)
		s.logger.Info("flow completed",
			slog.String("flow_id", s.id.String()),
			slog.Duration("elapsed", elapsed),
		)
		if cb != nil {
			cb(fc)
		}
	}()
}
