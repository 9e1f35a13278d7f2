package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/event"
	"github.com/meridianhq/conduct/hooks"
	"github.com/meridianhq/conduct/ledger"
	mw "github.com/meridianhq/conduct/middleware"
	"github.com/meridianhq/conduct/observability"
	"github.com/meridianhq/conduct/session"
	"github.com/meridianhq/conduct/stage"
	"github.com/meridianhq/conduct/stepper"
	"github.com/meridianhq/conduct/throttle"
)

// gateEmitter adapts *hooks.Registry to satisfy session.Emitter.
// This breaks the import cycle: session defines the interface,
// hooks.Registry provides the implementation, and the engine layer
// plugs them together.
type gateEmitter struct {
	r *hooks.Registry
}

func (a *gateEmitter) EmitSessionCreated(ctx context.Context, s *session.Session) {
	a.r.EmitSessionCreated(ctx, s)
}

func (a *gateEmitter) EmitStepCommitted(ctx context.Context, s *session.Session, opName string, step int64) {
	a.r.EmitStepCommitted(ctx, s, opName, step)
}

func (a *gateEmitter) EmitStepRejected(ctx context.Context, identityKey, opName string, _ int64, err error) {
	a.r.EmitStepRejected(ctx, identityKey, opName, err)
}

// Engine wraps a Coordinator with typed subsystem access.
// Use Build() to create one from a Coordinator.
type Engine struct {
	c          *conduct.Coordinator
	extensions *hooks.Registry
	gate       *session.Gate
	ledger     *ledger.Ledger
	broker     *event.Broker
	limiter    *throttle.Manager
	logger     *slog.Logger

	mws         []mw.Middleware
	throttleCfg *throttle.Config
	bufferSize  int

	// Ledger collaborators (optional).
	positioner ledger.Positioner
	recorder   ledger.Recorder
	describer  ledger.Describer
	identity   session.IdentityProvider

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e hooks.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware to the engine's guarded-operation
// chain, after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithThrottle enables per-identity-key rate limiting of guarded
// operations.
func WithThrottle(cfg throttle.Config) Option {
	return func(eng *Engine) {
		eng.throttleCfg = &cfg
	}
}

// WithEventBufferSize sets the per-subscriber buffer size of the event
// broker.
func WithEventBufferSize(size int) Option {
	return func(eng *Engine) {
		eng.bufferSize = size
	}
}

// WithPositioner sets the coordinate provider consulted by SetPosition.
func WithPositioner(p ledger.Positioner) Option {
	return func(eng *Engine) {
		eng.positioner = p
	}
}

// WithRecorder sets the downstream recorder invoked by SetPosition.
func WithRecorder(r ledger.Recorder) Option {
	return func(eng *Engine) {
		eng.recorder = r
	}
}

// WithDescriber sets the enrichment collaborator used when creating
// resources.
func WithDescriber(d ledger.Describer) Option {
	return func(eng *Engine) {
		eng.describer = d
	}
}

// WithIdentityProvider sets the provider that resolves the requester
// identity for owner-gated operations like SetPosition.
func WithIdentityProvider(p session.IdentityProvider) Option {
	return func(eng *Engine) {
		eng.identity = p
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Coordinator.
// The Coordinator's store must implement session.Store and ledger.Store.
func Build(c *conduct.Coordinator, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	store := c.Store()

	if store == nil {
		return nil, conduct.ErrNoStore
	}

	ss, ok := store.(session.Store)
	if !ok {
		return nil, fmt.Errorf("conduct: store does not implement session.Store")
	}
	ls, ok := store.(ledger.Store)
	if !ok {
		return nil, fmt.Errorf("conduct: store does not implement ledger.Store")
	}

	eng := &Engine{
		c:          c,
		extensions: hooks.NewRegistry(logger),
		logger:     logger,
		bufferSize: event.DefaultBufferSize,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// The broker fans lifecycle events out to live subscribers.
	eng.broker = event.NewBroker(logger, event.WithBufferSize(eng.bufferSize))
	eng.extensions.Register(eng.broker)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/meridianhq/conduct")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/meridianhq/conduct")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/meridianhq/conduct/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	config := c.Config()

	gateOpts := []session.GateOption{
		session.WithEmitter(&gateEmitter{r: eng.extensions}),
		session.WithMiddleware(allMws...),
		session.WithMultiplier(config.CreditMultiplier),
		session.WithOpTimeout(config.OpTimeout),
	}
	if eng.throttleCfg != nil {
		eng.limiter = throttle.NewManager(*eng.throttleCfg)
		gateOpts = append(gateOpts, session.WithLimiter(eng.limiter))
	}
	eng.gate = session.NewGate(ss, logger, gateOpts...)

	ledgerOpts := []ledger.LedgerOption{
		ledger.WithEmitter(eng.extensions),
	}
	if eng.positioner != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithPositioner(eng.positioner))
	}
	if eng.recorder != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithRecorder(eng.recorder))
	}
	if eng.describer != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithDescriber(eng.describer))
	}
	eng.ledger = ledger.NewLedger(ls, logger, ledgerOpts...)

	// Wire back into the Coordinator so Stop() notifies extensions.
	c.SetHooks(eng.extensions)

	return eng, nil
}

// NewFlow creates a stepper over the given flow definition, wired to the
// engine's extensions and the coordinator's stage pacing configuration.
func (eng *Engine) NewFlow(def stepper.Definition, opts ...stepper.Option) (*stepper.Stepper, error) {
	config := eng.c.Config()
	base := []stepper.Option{
		stepper.WithEmitter(eng.extensions),
		stepper.WithStageConfig(stage.Config{
			PacingMin:      config.PacingMin,
			PacingMax:      config.PacingMax,
			EffectDelay:    config.EffectDelay,
			EffectTimeout:  config.EffectTimeout,
			EffectAttempts: config.EffectAttempts,
		}),
	}
	return stepper.New(def, eng.logger, append(base, opts...)...)
}

// SetPosition resolves the requester identity through the configured
// IdentityProvider and runs the ledger's owner-gated placement flow.
func (eng *Engine) SetPosition(ctx context.Context, resourceID string) (*ledger.Placement, error) {
	if eng.identity == nil {
		return nil, fmt.Errorf("conduct: no identity provider configured")
	}
	requester, err := eng.identity.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("conduct: resolve requester identity: %w", err)
	}
	return eng.ledger.SetPosition(ctx, resourceID, requester)
}

// Gate returns the engine's step gate.
func (eng *Engine) Gate() *session.Gate { return eng.gate }

// Ledger returns the engine's position ledger.
func (eng *Engine) Ledger() *ledger.Ledger { return eng.ledger }

// Broker returns the engine's live event broker.
func (eng *Engine) Broker() *event.Broker { return eng.broker }

// Extensions returns the engine's extension registry.
func (eng *Engine) Extensions() *hooks.Registry { return eng.extensions }

// Limiter returns the engine's throttle manager, or nil when throttling
// is not configured.
func (eng *Engine) Limiter() *throttle.Manager { return eng.limiter }
