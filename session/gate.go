package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/middleware"
)

// Emitter receives session lifecycle notifications from the Gate.
// This interface is satisfied by hooks.Registry via an adapter in the
// engine package to break the import cycle between session and hooks.
type Emitter interface {
	EmitSessionCreated(ctx context.Context, s *Session)
	EmitStepCommitted(ctx context.Context, s *Session, opName string, step int64)
	EmitStepRejected(ctx context.Context, identityKey, opName string, requiredStep int64, err error)
}

// Limiter gates guarded operations per identity key. Satisfied by
// throttle.Manager.
type Limiter interface {
	Allow(identityKey string) bool
}

// Operation computes the effect of one guarded step. Execute must be free
// of side effects: the returned Effect is handed to the store and applied
// in the same atomic unit as the step advance. The second return value is
// the operation result surfaced to the caller on success.
type Operation interface {
	Name() string
	Execute(ctx context.Context, s *Session) (*Effect, any, error)
}

// Gate guards side-effecting operations behind a per-session step counter.
// Each counter value admits at most one committed operation; replays and
// races fail closed with zero side effect.
type Gate struct {
	store      Store
	emitter    Emitter
	limiter    Limiter
	logger     *slog.Logger
	chain      middleware.Middleware
	multiplier int64
	opTimeout  time.Duration
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithEmitter sets the lifecycle emitter.
func WithEmitter(e Emitter) GateOption {
	return func(g *Gate) { g.emitter = e }
}

// WithLimiter sets a per-session rate limiter for guarded operations.
func WithLimiter(l Limiter) GateOption {
	return func(g *Gate) { g.limiter = l }
}

// WithMiddleware wraps guarded execution in the given middleware chain.
func WithMiddleware(mws ...middleware.Middleware) GateOption {
	return func(g *Gate) { g.chain = middleware.Chain(mws...) }
}

// WithMultiplier sets the credit multiplier used by Credit operations.
func WithMultiplier(m int64) GateOption {
	return func(g *Gate) { g.multiplier = m }
}

// WithOpTimeout bounds each guarded operation end to end. The deadline is
// enforced by the Timeout middleware, so it only applies when that
// middleware is part of the gate's chain. Zero disables the deadline.
func WithOpTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.opTimeout = d }
}

// NewGate creates a step gate over the given store.
func NewGate(store Store, logger *slog.Logger, opts ...GateOption) *Gate {
	defaults := conduct.DefaultConfig()
	g := &Gate{
		store:      store,
		logger:     logger,
		multiplier: defaults.CreditMultiplier,
		opTimeout:  defaults.OpTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the gate's backing store.
func (g *Gate) Store() Store { return g.store }

// CreateResult is returned by CreateSession.
type CreateResult struct {
	Session *Session
	Created bool
}

// CreateSession creates the session for identityKey with the given members,
// or returns the existing one unchanged. Idempotent: repeated calls with
// the same key never create duplicate participants. Members without an ID
// are assigned one; members with duplicate handles are collapsed to the
// first occurrence.
func (g *Gate) CreateSession(ctx context.Context, identityKey string, members []Participant) (*CreateResult, error) {
	if identityKey == "" {
		return nil, fmt.Errorf("session: create: empty identity key")
	}

	seen := make(map[string]struct{}, len(members))
	participants := make([]Participant, 0, len(members))
	for _, m := range members {
		if m.Handle != "" {
			if _, dup := seen[m.Handle]; dup {
				continue
			}
			seen[m.Handle] = struct{}{}
		}
		if m.ID.IsNil() {
			m.ID = id.NewParticipantID()
		}
		if m.Entity.CreatedAt.IsZero() {
			m.Entity = conduct.NewEntity()
		}
		if m.Role == "" {
			m.Role = RolePlayer
		}
		participants = append(participants, m)
	}

	s := &Session{
		Entity:       conduct.NewEntity(),
		ID:           id.NewSessionID(),
		IdentityKey:  identityKey,
		Participants: participants,
	}

	stored, created, err := g.store.CreateSession(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("session: create %q: %w", identityKey, err)
	}

	if created {
		g.logger.Info("session created",
			slog.String("identity_key", identityKey),
			slog.String("session_id", stored.ID.String()),
			slog.Int("participants", len(stored.Participants)),
		)
		if g.emitter != nil {
			g.emitter.EmitSessionCreated(ctx, stored)
		}
	}

	return &CreateResult{Session: stored, Created: created}, nil
}

// GuardedExecute runs op against the session for identityKey if and only
// if the session's current step equals requiredStep. The operation's
// effect and the step advance to requiredStep+1 commit atomically at the
// persistence boundary; on any mismatch or lost race nothing is applied.
func (g *Gate) GuardedExecute(ctx context.Context, identityKey string, requiredStep int64, op Operation) (any, error) {
	if g.limiter != nil && !g.limiter.Allow(identityKey) {
		return nil, conduct.ErrThrottled
	}

	var result any
	exec := func(ctx context.Context) error {
		var err error
		result, err = g.execute(ctx, identityKey, requiredStep, op)
		return err
	}

	info := &middleware.OpInfo{
		Session: identityKey,
		Op:      op.Name(),
		Step:    requiredStep,
		Timeout: g.opTimeout,
	}

	var err error
	if g.chain != nil {
		err = g.chain(ctx, info, exec)
	} else {
		err = exec(ctx)
	}
	if err != nil {
		if g.emitter != nil {
			g.emitter.EmitStepRejected(ctx, identityKey, op.Name(), requiredStep, err)
		}
		return nil, err
	}
	return result, nil
}

func (g *Gate) execute(ctx context.Context, identityKey string, requiredStep int64, op Operation) (any, error) {
	s, err := g.store.GetSession(ctx, identityKey)
	if err != nil {
		return nil, fmt.Errorf("session: guarded %q op %q: %w", identityKey, op.Name(), err)
	}

	// Fail fast before computing the effect. The authoritative check is
	// the store's conditional commit below; this only avoids pointless
	// work on an obviously stale step.
	if s.Step != requiredStep {
		return nil, fmt.Errorf("session: guarded %q op %q at step %d, have %d: %w",
			identityKey, op.Name(), requiredStep, s.Step, conduct.ErrStepMismatch)
	}

	effect, result, err := op.Execute(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("session: guarded %q op %q: %w", identityKey, op.Name(), err)
	}

	committed, err := g.store.CommitStep(ctx, identityKey, requiredStep, effect)
	if err != nil {
		return nil, fmt.Errorf("session: guarded %q op %q commit: %w", identityKey, op.Name(), err)
	}

	g.logger.Debug("step committed",
		slog.String("identity_key", identityKey),
		slog.String("op", op.Name()),
		slog.Int64("step", committed.Step),
	)
	if g.emitter != nil {
		g.emitter.EmitStepCommitted(ctx, committed, op.Name(), committed.Step)
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Credit operation
// ──────────────────────────────────────────────────

// CreditResult is the outcome of a committed credit operation.
type CreditResult struct {
	ParticipantID id.ParticipantID `json:"participant_id"`
	Credited      int64            `json:"credited"`
}

type creditOp struct {
	participant id.ParticipantID
	amount      int64
	multiplier  int64
}

func (c *creditOp) Name() string { return "credit" }

func (c *creditOp) Execute(_ context.Context, s *Session) (*Effect, any, error) {
	if c.amount <= 0 {
		return nil, nil, fmt.Errorf("credit amount %d must be positive", c.amount)
	}
	if _, ok := s.Participant(c.participant); !ok {
		return nil, nil, fmt.Errorf("credit participant %s: %w", c.participant, conduct.ErrParticipantNotFound)
	}

	credited := c.amount * c.multiplier
	effect := &Effect{
		Credits:   []Credit{{ParticipantID: c.participant, Points: credited}},
		PoolDelta: credited,
	}
	return effect, &CreditResult{ParticipantID: c.participant, Credited: credited}, nil
}

// Credit returns an Operation that converts an external amount into
// accumulator credit via the gate's fixed multiplier, crediting both the
// participant's primary accumulator and the session's aggregate pool.
func (g *Gate) Credit(participant id.ParticipantID, amount int64) Operation {
	return &creditOp{participant: participant, amount: amount, multiplier: g.multiplier}
}

// IsRetryableStepError reports whether err is a step race that the caller
// may retry at a later counter value (as opposed to a replay, which must
// not be retried).
func IsRetryableStepError(err error) bool {
	return errors.Is(err, conduct.ErrStepConflict)
}
