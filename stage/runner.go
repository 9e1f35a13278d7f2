package stage

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/conduct/backoff"
)

// EffectFunc is the real asynchronous call a stage awaits: a guarded
// operation, a metadata lookup, a ledger write. Its result becomes the
// stage output.
type EffectFunc func(ctx context.Context) (any, error)

// Config controls pacing animation and the effectful call's retry policy.
type Config struct {
	// PacingMin and PacingMax bound the randomized duration of each
	// pacing sub-task's animation.
	PacingMin time.Duration
	PacingMax time.Duration

	// EffectDelay is how long the effectful sub-task animates before it
	// parks at 99% and awaits the real call.
	EffectDelay time.Duration

	// Tick is the animation step interval.
	Tick time.Duration

	// EffectTimeout bounds each attempt of the real call. Zero disables
	// the per-attempt deadline.
	EffectTimeout time.Duration

	// EffectAttempts is the total number of tries for the real call.
	// Values below 1 are treated as 1.
	EffectAttempts int

	// Backoff is the delay strategy between effect retries. Nil uses
	// backoff.DefaultStrategy.
	Backoff backoff.Strategy
}

func (c Config) withDefaults() Config {
	if c.PacingMin <= 0 {
		c.PacingMin = 400 * time.Millisecond
	}
	if c.PacingMax < c.PacingMin {
		c.PacingMax = c.PacingMin
	}
	if c.EffectDelay <= 0 {
		c.EffectDelay = 800 * time.Millisecond
	}
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.EffectAttempts < 1 {
		c.EffectAttempts = 1
	}
	if c.Backoff == nil {
		c.Backoff = backoff.DefaultStrategy()
	}
	return c
}

// Runner executes one stage: all pacing sub-tasks plus the effectful
// sub-task run concurrently and are joined before the stage reports
// completion. Pacing never gates correctness; the join does.
type Runner struct {
	stageID string
	cfg     Config
	logger  *slog.Logger

	mu     sync.Mutex
	tasks  []*task
	effect *task
	fn     EffectFunc
	output any
	ran    bool
}

// NewRunner creates a runner for the named stage.
func NewRunner(stageID string, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		stageID: stageID,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// StageID returns the stage identifier this runner executes.
func (r *Runner) StageID() string { return r.stageID }

// AddPacing adds a cosmetic pacing sub-task. Must be called before Run.
func (r *Runner) AddPacing(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, newTask(name, false))
}

// SetEffect sets the stage's single effectful sub-task. Must be called
// before Run. Calling it twice replaces the previous effect.
func (r *Runner) SetEffect(name string, fn EffectFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effect = newTask(name, true)
	r.fn = fn
}

// Run executes the stage and blocks until every sub-task finishes or one
// fails. It returns the effectful sub-task's result, which becomes the
// stage output. A runner is single-use.
func (r *Runner) Run(ctx context.Context) (any, error) {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return nil, fmt.Errorf("stage %s: runner already ran", r.stageID)
	}
	// An empty runner can never satisfy Complete, so running it would
	// report success for a stage that did nothing.
	if len(r.tasks) == 0 && r.effect == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("stage %s: runner has no sub-tasks", r.stageID)
	}
	r.ran = true
	pacing := r.tasks
	effect := r.effect
	fn := r.fn
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	for _, t := range pacing {
		g.Go(func() error {
			return r.runPacing(ctx, t)
		})
	}

	if effect != nil {
		g.Go(func() error {
			return r.runEffect(ctx, effect, fn)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	out := r.output
	r.mu.Unlock()
	return out, nil
}

// runPacing animates a pacing sub-task from 0 to 100 over a random
// duration in [PacingMin, PacingMax]. Pacing never fails on its own; it
// only stops early when the stage context is cancelled.
func (r *Runner) runPacing(ctx context.Context, t *task) error {
	t.setStatus(StatusRunning)

	span := r.cfg.PacingMax - r.cfg.PacingMin
	total := r.cfg.PacingMin
	if span > 0 {
		total += time.Duration(rand.Int64N(int64(span) + 1)) //nolint:gosec // cosmetic jitter
	}

	if err := r.animate(ctx, t, total, 100); err != nil {
		t.setStatus(StatusFailed)
		return err
	}
	t.setStatus(StatusDone)
	return nil
}

// runEffect animates to 99% over EffectDelay, then awaits the real call
// with the configured retry policy. Only a successful call moves the
// sub-task to 100%.
func (r *Runner) runEffect(ctx context.Context, t *task, fn EffectFunc) error {
	t.setStatus(StatusRunning)

	if fn == nil {
		t.setStatus(StatusFailed)
		return fmt.Errorf("stage %s: effect %s has no function", r.stageID, t.name)
	}

	if err := r.animate(ctx, t, r.cfg.EffectDelay, 99); err != nil {
		t.setStatus(StatusFailed)
		return err
	}

	out, err := backoff.Retry(ctx, r.cfg.EffectAttempts, r.cfg.EffectTimeout, r.cfg.Backoff, fn)
	if err != nil {
		t.setStatus(StatusFailed)
		r.logger.Error("stage effect failed",
			slog.String("stage_id", r.stageID),
			slog.String("task", t.name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("stage %s effect %s: %w", r.stageID, t.name, err)
	}

	r.mu.Lock()
	r.output = out
	r.mu.Unlock()

	t.setProgress(100)
	t.setStatus(StatusDone)
	return nil
}

// animate steps a sub-task's progress toward target over total duration,
// advancing every Tick. It returns ctx.Err() if cancelled mid-animation.
func (r *Runner) animate(ctx context.Context, t *task, total time.Duration, target int64) error {
	if total <= 0 {
		t.setProgress(target)
		return nil
	}

	start := time.Now()
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed >= total {
				t.setProgress(target)
				return nil
			}
			t.setProgress(int64(elapsed) * target / int64(total))
		}
	}
}

// Complete reports whether every sub-task (pacing and effectful) reached
// 100%. While the real call is still pending the stage is incomplete even
// if all pacing finished.
func (r *Runner) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if !t.done() {
			return false
		}
	}
	if r.effect != nil && !r.effect.done() {
		return false
	}
	return len(r.tasks) > 0 || r.effect != nil
}

// Output returns the effectful sub-task's result, or nil before Run
// succeeds.
func (r *Runner) Output() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}

// Snapshot returns the current state of every sub-task, pacing first,
// effectful last.
func (r *Runner) Snapshot() []TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskState, 0, len(r.tasks)+1)
	for _, t := range r.tasks {
		out = append(out, t.state())
	}
	if r.effect != nil {
		out = append(out, r.effect.state())
	}
	return out
}
