// Package redis implements store.Store using Redis. Sessions are stored
// as msgpack blobs with optimistic WATCH-based step commits; placement
// sequences use per-resource INCR counters so concurrent appends receive
// distinct consecutive values.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/conduct/store"
)

// Ensure Store implements the composite interface at compile time.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCommitRetries sets how many times a WATCH-aborted commit is
// re-examined before giving up. Each retry re-reads the session, so a
// genuinely stale step still fails immediately.
func WithCommitRetries(n int) Option {
	return func(s *Store) { s.commitRetries = n }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client        redis.UniversalClient
	logger        *slog.Logger
	commitRetries int
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:        client,
		logger:        slog.Default(),
		commitRetries: 3,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
