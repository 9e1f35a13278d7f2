package hooks_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/meridianhq/conduct/hooks"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnSessionCreated(_ context.Context, _ *session.Session) error {
	e.calls = append(e.calls, "OnSessionCreated")
	return nil
}

func (e *allHooksExt) OnStepCommitted(_ context.Context, _ *session.Session, _ string, _ int64) error {
	e.calls = append(e.calls, "OnStepCommitted")
	return nil
}

func (e *allHooksExt) OnStepRejected(_ context.Context, _, _ string, _ error) error {
	e.calls = append(e.calls, "OnStepRejected")
	return nil
}

func (e *allHooksExt) OnStageStarted(_ context.Context, _ id.FlowID, _ string) error {
	e.calls = append(e.calls, "OnStageStarted")
	return nil
}

func (e *allHooksExt) OnStageCompleted(_ context.Context, _ id.FlowID, _ string, _ time.Duration) error {
	e.calls = append(e.calls, "OnStageCompleted")
	return nil
}

func (e *allHooksExt) OnStageFailed(_ context.Context, _ id.FlowID, _ string, _ error) error {
	e.calls = append(e.calls, "OnStageFailed")
	return nil
}

func (e *allHooksExt) OnFlowCompleted(_ context.Context, _ id.FlowID, _ time.Duration) error {
	e.calls = append(e.calls, "OnFlowCompleted")
	return nil
}

func (e *allHooksExt) OnFlowFailed(_ context.Context, _ id.FlowID, _ error) error {
	e.calls = append(e.calls, "OnFlowFailed")
	return nil
}

func (e *allHooksExt) OnFlowCancelled(_ context.Context, _ id.FlowID, _ string) error {
	e.calls = append(e.calls, "OnFlowCancelled")
	return nil
}

func (e *allHooksExt) OnPlacementAppended(_ context.Context, _ *ledger.Placement) error {
	e.calls = append(e.calls, "OnPlacementAppended")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// sessionOnlyExt only implements session-related hooks.
type sessionOnlyExt struct {
	calls []string
}

func (e *sessionOnlyExt) Name() string { return "session-only" }

func (e *sessionOnlyExt) OnSessionCreated(_ context.Context, _ *session.Session) error {
	e.calls = append(e.calls, "OnSessionCreated")
	return nil
}

func (e *sessionOnlyExt) OnStepCommitted(_ context.Context, _ *session.Session, _ string, _ int64) error {
	e.calls = append(e.calls, "OnStepCommitted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnSessionCreated(_ context.Context, _ *session.Session) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func newRegistry() *hooks.Registry {
	return hooks.NewRegistry(slog.New(slog.DiscardHandler))
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_EmitsAllHooks(t *testing.T) {
	r := newRegistry()
	e := &allHooksExt{}
	r.Register(e)

	ctx := context.Background()
	s := &session.Session{IdentityKey: "k1"}
	flowID := id.NewFlowID()

	r.EmitSessionCreated(ctx, s)
	r.EmitStepCommitted(ctx, s, "credit", 1)
	r.EmitStepRejected(ctx, "k1", "credit", errors.New("stale"))
	r.EmitStageStarted(ctx, flowID, "intro")
	r.EmitStageCompleted(ctx, flowID, "intro", time.Second)
	r.EmitStageFailed(ctx, flowID, "intro", errors.New("bad"))
	r.EmitFlowCompleted(ctx, flowID, time.Minute)
	r.EmitFlowFailed(ctx, flowID, errors.New("bad"))
	r.EmitFlowCancelled(ctx, flowID, "intro")
	r.EmitPlacementAppended(ctx, &ledger.Placement{ResourceID: "g1", Seq: 1})
	r.EmitShutdown(ctx)

	want := []string{
		"OnSessionCreated", "OnStepCommitted", "OnStepRejected",
		"OnStageStarted", "OnStageCompleted", "OnStageFailed",
		"OnFlowCompleted", "OnFlowFailed", "OnFlowCancelled",
		"OnPlacementAppended", "OnShutdown",
	}
	if len(e.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
	for i := range want {
		if e.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, e.calls[i], want[i])
		}
	}
}

func TestRegistry_PartialExtensionOnlyGetsItsHooks(t *testing.T) {
	r := newRegistry()
	e := &sessionOnlyExt{}
	r.Register(e)

	ctx := context.Background()
	r.EmitSessionCreated(ctx, &session.Session{IdentityKey: "k1"})
	r.EmitStepCommitted(ctx, &session.Session{IdentityKey: "k1"}, "credit", 1)
	r.EmitStageStarted(ctx, id.NewFlowID(), "intro")
	r.EmitShutdown(ctx)

	if len(e.calls) != 2 {
		t.Fatalf("calls = %v, want exactly the 2 session hooks", e.calls)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	r := newRegistry()
	tracking := &sessionOnlyExt{}
	r.Register(&failingExt{})
	r.Register(tracking)

	// The failing extension must not prevent later extensions from
	// receiving the event.
	r.EmitSessionCreated(context.Background(), &session.Session{IdentityKey: "k1"})
	r.EmitShutdown(context.Background())

	if len(tracking.calls) != 1 || tracking.calls[0] != "OnSessionCreated" {
		t.Fatalf("calls = %v, want [OnSessionCreated]", tracking.calls)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := newRegistry()
	r.Register(&allHooksExt{})
	r.Register(&sessionOnlyExt{})

	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("len(Extensions()) = %d, want 2", got)
	}
}
