// Package hooks defines the extension system for conduct. Extensions are
// notified of lifecycle events (session created, step committed, stage
// completed, flow cancelled, etc.) and can react to them — logging,
// metrics, event fan-out.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Hook errors are logged and swallowed;
// an extension can never block or fail a guarded operation.
package hooks
