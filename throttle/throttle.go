// Package throttle provides per-session rate limiting for guarded
// operations. Each identity key gets its own token bucket; sessions that
// burst past their budget are rejected instead of queued.
package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines the rate limit applied to each session.
type Config struct {
	// RateLimit is the sustained operations per second per session.
	// Zero disables throttling entirely.
	RateLimit float64

	// Burst is the token bucket size per session. Values below 1 are
	// treated as 1 when RateLimit is set.
	Burst int
}

// Manager tracks one rate limiter per identity key. It is safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	limiters map[string]*rate.Limiter
}

// NewManager creates a throttle manager with the given per-session config.
func NewManager(cfg Config) *Manager {
	if cfg.RateLimit > 0 && cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Manager{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the session identified by identityKey may execute
// another operation now. When throttling is disabled it always returns
// true.
func (m *Manager) Allow(identityKey string) bool {
	if m.cfg.RateLimit <= 0 {
		return true
	}

	m.mu.Lock()
	lim := m.limiters[identityKey]
	if lim == nil {
		lim = rate.NewLimiter(rate.Limit(m.cfg.RateLimit), m.cfg.Burst)
		m.limiters[identityKey] = lim
	}
	m.mu.Unlock()

	return lim.Allow()
}

// Forget drops the limiter state for an identity key. Call when a session
// is abandoned so the map does not grow without bound.
func (m *Manager) Forget(identityKey string) {
	m.mu.Lock()
	delete(m.limiters, identityKey)
	m.mu.Unlock()
}

// Tracked returns the number of identity keys currently holding limiter
// state.
func (m *Manager) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}
