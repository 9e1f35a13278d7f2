package conduct

import (
	"context"
	"log/slog"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// Storer is the minimal store interface held by the Coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// shutdownEmitter is an internal interface for hook shutdown notification.
type shutdownEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Coordinator is the root handle for a Conduct deployment. It owns the
// store lifecycle and configuration shared by gates, ledgers, and flows.
//
// Create one with New() and functional options, then wire subsystems with
// the engine package. The Coordinator holds references via internal
// interfaces to avoid import cycles.
type Coordinator struct {
	config Config
	logger *slog.Logger
	store  Storer
	hooks  shutdownEmitter
}

// New creates a new Coordinator with the given options.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the coordinator's logger.
func (c *Coordinator) Logger() *slog.Logger { return c.logger }

// Store returns the coordinator's store.
func (c *Coordinator) Store() Storer { return c.store }

// Config returns a copy of the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.config }

// SetHooks sets the hook emitter notified on shutdown (called by the
// engine package).
func (c *Coordinator) SetHooks(h shutdownEmitter) { c.hooks = h }

// Start verifies the store is reachable and runs pending migrations.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	if err := c.store.Migrate(ctx); err != nil {
		return err
	}
	return c.store.Ping(ctx)
}

// Stop gracefully shuts down the coordinator.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.hooks != nil {
		c.hooks.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithConfig replaces the coordinator's configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) error {
		c.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the coordinator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(c *Coordinator) error {
		c.store = s
		return nil
	}
}
