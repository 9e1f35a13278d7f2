// Package conduct coordinates multi-step guided flows with exactly-once
// side effects. It provides a step-gated session ledger that makes
// side-effecting operations idempotent per session per step, a workflow
// stepper driving ordered stages with validation gates and auto-advance,
// a stage runner that reconciles cosmetic pacing with one awaited real
// operation per stage, and an append-only placement ledger.
//
// Conduct is designed as a library, not a service. Import it, configure a
// store, and drive flows through the engine package.
//
// # Quick Start
//
//	c, err := conduct.New(
//	    conduct.WithStore(memory.New()),
//	    conduct.WithLogger(logger),
//	)
//
// # Architecture
//
// Conduct follows a composable store pattern where each subsystem
// (session, ledger) defines its own store interface. A single backend
// implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package conduct
