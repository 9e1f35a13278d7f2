// Package middleware provides composable middleware for guarded operation
// execution. Middleware wraps the operation call synchronously and can
// modify execution (recover from panics, enforce deadlines, log, add
// tracing, etc.).
package middleware

import (
	"context"
	"time"
)

// OpInfo describes the guarded operation being executed.
type OpInfo struct {
	// Session is the identity key of the session the operation targets.
	Session string

	// Op is the operation name.
	Op string

	// Step is the step counter value the operation requires.
	Step int64

	// Timeout bounds execution when non-zero (consumed by the Timeout
	// middleware).
	Timeout time.Duration
}

// Handler is the terminal function that executes the guarded operation.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the operation being executed, and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, op *OpInfo, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, op *OpInfo, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, op, prev)
			}
		}
		return h(ctx)
	}
}
