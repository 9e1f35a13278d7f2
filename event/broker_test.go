package event_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/meridianhq/conduct/event"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

func newBroker(opts ...event.BrokerOption) *event.Broker {
	return event.NewBroker(slog.New(slog.DiscardHandler), opts...)
}

func recvEvent(t *testing.T, sub *event.Subscriber) *event.Event {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestBroker_SessionEventsReachSessionTopic(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("ui-1", event.SessionTopic("k1"))

	s := &session.Session{IdentityKey: "k1", Step: 1, PoolBalance: 500}
	if err := b.OnStepCommitted(context.Background(), s, "credit", 1); err != nil {
		t.Fatalf("OnStepCommitted: %v", err)
	}

	evt := recvEvent(t, sub)
	if evt.Kind != event.KindStepCommitted {
		t.Errorf("Kind = %q, want %q", evt.Kind, event.KindStepCommitted)
	}
	data, ok := evt.Data.(*event.SessionData)
	if !ok {
		t.Fatalf("Data = %T, want *SessionData", evt.Data)
	}
	if data.IdentityKey != "k1" || data.Op != "credit" || data.Step != 1 || data.PoolBalance != 500 {
		t.Errorf("data = %+v", data)
	}
}

func TestBroker_FirehoseSeesEverything(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("all", event.TopicFirehose)
	ctx := context.Background()

	b.OnSessionCreated(ctx, &session.Session{IdentityKey: "k1"})
	b.OnStageStarted(ctx, id.NewFlowID(), "intro")
	b.OnPlacementAppended(ctx, &ledger.Placement{ResourceID: "g1", Seq: 1})

	kinds := map[event.Kind]bool{}
	for i := 0; i < 3; i++ {
		kinds[recvEvent(t, sub).Kind] = true
	}
	for _, want := range []event.Kind{
		event.KindSessionCreated, event.KindStageStarted, event.KindPlacementAppended,
	} {
		if !kinds[want] {
			t.Errorf("firehose missing %q", want)
		}
	}
}

func TestBroker_TopicIsolation(t *testing.T) {
	b := newBroker()
	subA := b.Subscribe("a", event.SessionTopic("k1"))
	subB := b.Subscribe("b", event.SessionTopic("other"))

	b.OnStepRejected(context.Background(), "k1", "credit", errors.New("stale"))

	evt := recvEvent(t, subA)
	data := evt.Data.(*event.SessionData)
	if data.Error == "" {
		t.Error("rejection payload missing error")
	}

	select {
	case evt := <-subB.C():
		t.Fatalf("subscriber on other topic received %q", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_NoDuplicateAcrossOverlappingTopics(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("both", event.TopicFirehose, event.TopicSessions, event.SessionTopic("k1"))

	b.OnSessionCreated(context.Background(), &session.Session{IdentityKey: "k1"})

	recvEvent(t, sub)
	select {
	case evt := <-sub.C():
		t.Fatalf("duplicate delivery of %q", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_DropOnFullBuffer(t *testing.T) {
	b := newBroker(event.WithBufferSize(1))
	sub := b.Subscribe("slow", event.TopicFirehose)
	ctx := context.Background()

	b.OnSessionCreated(ctx, &session.Session{IdentityKey: "k1"})
	b.OnSessionCreated(ctx, &session.Session{IdentityKey: "k2"})

	if sub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", sub.Dropped())
	}

	stats := b.Stats()
	if stats.TotalPublished != 2 {
		t.Errorf("TotalPublished = %d, want 2", stats.TotalPublished)
	}
	if stats.TotalDelivered != 1 {
		t.Errorf("TotalDelivered = %d, want 1", stats.TotalDelivered)
	}
}

func TestBroker_RemoveSubscriber(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("gone", event.TopicFirehose)
	b.RemoveSubscriber("gone")

	// Channel is closed.
	if _, open := <-sub.C(); open {
		t.Fatal("channel still open after RemoveSubscriber")
	}
	if b.Topics().SubscriberCount(event.TopicFirehose) != 0 {
		t.Error("subscriber still registered on topic")
	}

	// Publishing after removal is a no-op, not a panic.
	b.OnSessionCreated(context.Background(), &session.Session{IdentityKey: "k1"})
}

func TestBroker_Shutdown(t *testing.T) {
	b := newBroker()
	sub1 := b.Subscribe("s1", event.TopicFirehose)
	sub2 := b.Subscribe("s2", event.TopicFlows)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	for _, sub := range []*event.Subscriber{sub1, sub2} {
		if _, open := <-sub.C(); open {
			t.Error("subscriber channel open after shutdown")
		}
	}
	if got := b.Stats().SubscriberCount; got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic string
		ok    bool
	}{
		{"firehose", true},
		{"sessions", true},
		{"flows", true},
		{"session:k1", true},
		{"flow:flow_abc", true},
		{"resource:g1", true},
		{"bogus", false},
		{"queue:x", false},
		{":", false},
	}
	for _, tt := range tests {
		err := event.ValidateTopic(tt.topic)
		if tt.ok && err != nil {
			t.Errorf("ValidateTopic(%q) = %v, want nil", tt.topic, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidateTopic(%q) = nil, want error", tt.topic)
		}
	}
}
