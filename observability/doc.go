// Package observability provides an OpenTelemetry-based metrics
// extension for conduct. The MetricsExtension implements lifecycle hooks
// to record system-wide counters for session, step, flow, and ledger
// events.
//
// For per-operation metrics and tracing, see the middleware package:
// middleware.Metrics() and middleware.Tracing().
package observability
