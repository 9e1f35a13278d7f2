// Package engine wires all conduct subsystems together. It creates the
// extension registry, step gate, position ledger, event broker, and
// middleware chain, and provides flow construction.
//
// This package exists to break the import cycle: the root conduct
// package defines Entity (imported by session, ledger, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine
