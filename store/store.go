// Package store defines the aggregate persistence interface. Each
// subsystem (session, ledger) defines its own store interface; the
// composite Store composes them with lifecycle methods. Backends:
// Memory, Redis, Postgres, and Mongo.
package store

import (
	"context"

	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// Store is the aggregate persistence interface. A single backend
// implements all subsystem stores plus lifecycle.
type Store interface {
	session.Store
	ledger.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
