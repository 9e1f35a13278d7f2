package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/meridianhq/conduct/hooks"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// meterName is the instrumentation scope name for conduct metrics.
const meterName = "github.com/meridianhq/conduct"

// Compile-time interface checks.
var (
	_ hooks.Extension         = (*MetricsExtension)(nil)
	_ hooks.SessionCreated    = (*MetricsExtension)(nil)
	_ hooks.StepCommitted     = (*MetricsExtension)(nil)
	_ hooks.StepRejected      = (*MetricsExtension)(nil)
	_ hooks.StageCompleted    = (*MetricsExtension)(nil)
	_ hooks.StageFailed       = (*MetricsExtension)(nil)
	_ hooks.FlowCompleted     = (*MetricsExtension)(nil)
	_ hooks.FlowFailed        = (*MetricsExtension)(nil)
	_ hooks.FlowCancelled     = (*MetricsExtension)(nil)
	_ hooks.PlacementAppended = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OTel
// instruments. Register it as a conduct extension to automatically track
// session creation, step commit and rejection rates, stage and flow
// outcomes, and ledger appends. Instrument creation falls back to noop
// on error per the OTel API contract, so a missing MeterProvider makes
// every hook a pass-through.
type MetricsExtension struct {
	sessionCreated    metric.Int64Counter
	stepCommitted     metric.Int64Counter
	stepRejected      metric.Int64Counter
	stageCompleted    metric.Int64Counter
	stageFailed       metric.Int64Counter
	flowCompleted     metric.Int64Counter
	flowFailed        metric.Int64Counter
	flowCancelled     metric.Int64Counter
	placementAppended metric.Int64Counter
	flowDuration      metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.sessionCreated, _ = meter.Int64Counter("conduct.session.created",
		metric.WithDescription("Total sessions created"))
	m.stepCommitted, _ = meter.Int64Counter("conduct.step.committed",
		metric.WithDescription("Total step commits"))
	m.stepRejected, _ = meter.Int64Counter("conduct.step.rejected",
		metric.WithDescription("Total rejected guarded operations"))
	m.stageCompleted, _ = meter.Int64Counter("conduct.stage.completed",
		metric.WithDescription("Total completed flow stages"))
	m.stageFailed, _ = meter.Int64Counter("conduct.stage.failed",
		metric.WithDescription("Total failed flow stages"))
	m.flowCompleted, _ = meter.Int64Counter("conduct.flow.completed",
		metric.WithDescription("Total completed flows"))
	m.flowFailed, _ = meter.Int64Counter("conduct.flow.failed",
		metric.WithDescription("Total failed flows"))
	m.flowCancelled, _ = meter.Int64Counter("conduct.flow.cancelled",
		metric.WithDescription("Total cancelled flows"))
	m.placementAppended, _ = meter.Int64Counter("conduct.placement.appended",
		metric.WithDescription("Total placement records appended"))
	m.flowDuration, _ = meter.Float64Histogram("conduct.flow.duration",
		metric.WithDescription("Duration of completed flows in seconds"),
		metric.WithUnit("s"))
	return m
}

// Name implements hooks.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Session lifecycle hooks ─────────────────────────

// OnSessionCreated implements hooks.SessionCreated.
func (m *MetricsExtension) OnSessionCreated(ctx context.Context, _ *session.Session) error {
	m.sessionCreated.Add(ctx, 1)
	return nil
}

// OnStepCommitted implements hooks.StepCommitted.
func (m *MetricsExtension) OnStepCommitted(ctx context.Context, _ *session.Session, _ string, _ int64) error {
	m.stepCommitted.Add(ctx, 1)
	return nil
}

// OnStepRejected implements hooks.StepRejected.
func (m *MetricsExtension) OnStepRejected(ctx context.Context, _, _ string, _ error) error {
	m.stepRejected.Add(ctx, 1)
	return nil
}

// ── Flow lifecycle hooks ────────────────────────────

// OnStageCompleted implements hooks.StageCompleted.
func (m *MetricsExtension) OnStageCompleted(ctx context.Context, _ id.FlowID, _ string, _ time.Duration) error {
	m.stageCompleted.Add(ctx, 1)
	return nil
}

// OnStageFailed implements hooks.StageFailed.
func (m *MetricsExtension) OnStageFailed(ctx context.Context, _ id.FlowID, _ string, _ error) error {
	m.stageFailed.Add(ctx, 1)
	return nil
}

// OnFlowCompleted implements hooks.FlowCompleted.
func (m *MetricsExtension) OnFlowCompleted(ctx context.Context, _ id.FlowID, elapsed time.Duration) error {
	m.flowCompleted.Add(ctx, 1)
	m.flowDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnFlowFailed implements hooks.FlowFailed.
func (m *MetricsExtension) OnFlowFailed(ctx context.Context, _ id.FlowID, _ error) error {
	m.flowFailed.Add(ctx, 1)
	return nil
}

// OnFlowCancelled implements hooks.FlowCancelled.
func (m *MetricsExtension) OnFlowCancelled(ctx context.Context, _ id.FlowID, _ string) error {
	m.flowCancelled.Add(ctx, 1)
	return nil
}

// ── Ledger hooks ────────────────────────────────────

// OnPlacementAppended implements hooks.PlacementAppended.
func (m *MetricsExtension) OnPlacementAppended(ctx context.Context, _ *ledger.Placement) error {
	m.placementAppended.Add(ctx, 1)
	return nil
}
