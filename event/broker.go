package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridianhq/conduct/hooks"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// Compile-time interface checks.
var (
	_ hooks.Extension         = (*Broker)(nil)
	_ hooks.SessionCreated    = (*Broker)(nil)
	_ hooks.StepCommitted     = (*Broker)(nil)
	_ hooks.StepRejected      = (*Broker)(nil)
	_ hooks.StageStarted      = (*Broker)(nil)
	_ hooks.StageCompleted    = (*Broker)(nil)
	_ hooks.StageFailed       = (*Broker)(nil)
	_ hooks.FlowCompleted     = (*Broker)(nil)
	_ hooks.FlowFailed        = (*Broker)(nil)
	_ hooks.FlowCancelled     = (*Broker)(nil)
	_ hooks.PlacementAppended = (*Broker)(nil)
	_ hooks.Shutdown          = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker is the typed event broker. It implements the hooks.Extension
// interface to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDelivered atomic.Int64

	// Config.
	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new event broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hooks.Extension.
func (b *Broker) Name() string { return "event-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// BrokerStats is a snapshot of broker counters.
type BrokerStats struct {
	TopicCount      int
	SubscriberCount int
	TotalPublished  int64
	TotalDelivered  int64
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDelivered:  b.totalDelivered.Load(),
	}
}

// publish stamps and fans out an event to its resolved topics.
func (b *Broker) publish(kind Kind, topic string, data any) {
	evt := &Event{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Topic:     topic,
		Data:      data,
	}
	b.totalPublished.Add(1)
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalDelivered.Add(int64(delivered))
}

// ──────────────────────────────────────────────────
// hooks.Extension implementation
// ──────────────────────────────────────────────────

// OnSessionCreated implements hooks.SessionCreated.
func (b *Broker) OnSessionCreated(_ context.Context, s *session.Session) error {
	b.publish(KindSessionCreated, SessionTopic(s.IdentityKey), &SessionData{
		IdentityKey:  s.IdentityKey,
		Step:         s.Step,
		Participants: len(s.Participants),
		PoolBalance:  s.PoolBalance,
	})
	return nil
}

// OnStepCommitted implements hooks.StepCommitted.
func (b *Broker) OnStepCommitted(_ context.Context, s *session.Session, op string, step int64) error {
	b.publish(KindStepCommitted, SessionTopic(s.IdentityKey), &SessionData{
		IdentityKey:  s.IdentityKey,
		Op:           op,
		Step:         step,
		Participants: len(s.Participants),
		PoolBalance:  s.PoolBalance,
	})
	return nil
}

// OnStepRejected implements hooks.StepRejected.
func (b *Broker) OnStepRejected(_ context.Context, identityKey, op string, opErr error) error {
	b.publish(KindStepRejected, SessionTopic(identityKey), &SessionData{
		IdentityKey: identityKey,
		Op:          op,
		Error:       opErr.Error(),
	})
	return nil
}

// OnStageStarted implements hooks.StageStarted.
func (b *Broker) OnStageStarted(_ context.Context, flowID id.FlowID, stageID string) error {
	b.publish(KindStageStarted, FlowTopic(flowID.String()), &FlowData{
		FlowID:  flowID.String(),
		StageID: stageID,
	})
	return nil
}

// OnStageCompleted implements hooks.StageCompleted.
func (b *Broker) OnStageCompleted(_ context.Context, flowID id.FlowID, stageID string, elapsed time.Duration) error {
	b.publish(KindStageCompleted, FlowTopic(flowID.String()), &FlowData{
		FlowID:    flowID.String(),
		StageID:   stageID,
		ElapsedMs: elapsed.Milliseconds(),
	})
	return nil
}

// OnStageFailed implements hooks.StageFailed.
func (b *Broker) OnStageFailed(_ context.Context, flowID id.FlowID, stageID string, stageErr error) error {
	b.publish(KindStageFailed, FlowTopic(flowID.String()), &FlowData{
		FlowID:  flowID.String(),
		StageID: stageID,
		Error:   stageErr.Error(),
	})
	return nil
}

// OnFlowCompleted implements hooks.FlowCompleted.
func (b *Broker) OnFlowCompleted(_ context.Context, flowID id.FlowID, elapsed time.Duration) error {
	b.publish(KindFlowCompleted, FlowTopic(flowID.String()), &FlowData{
		FlowID:    flowID.String(),
		ElapsedMs: elapsed.Milliseconds(),
	})
	return nil
}

// OnFlowFailed implements hooks.FlowFailed.
func (b *Broker) OnFlowFailed(_ context.Context, flowID id.FlowID, flowErr error) error {
	b.publish(KindFlowFailed, FlowTopic(flowID.String()), &FlowData{
		FlowID: flowID.String(),
		Error:  flowErr.Error(),
	})
	return nil
}

// OnFlowCancelled implements hooks.FlowCancelled.
func (b *Broker) OnFlowCancelled(_ context.Context, flowID id.FlowID, stageID string) error {
	b.publish(KindFlowCancelled, FlowTopic(flowID.String()), &FlowData{
		FlowID:  flowID.String(),
		StageID: stageID,
	})
	return nil
}

// OnPlacementAppended implements hooks.PlacementAppended.
func (b *Broker) OnPlacementAppended(_ context.Context, p *ledger.Placement) error {
	b.publish(KindPlacementAppended, ResourceTopic(p.ResourceID), &PlacementData{
		ResourceID: p.ResourceID,
		X:          p.X,
		Y:          p.Y,
		Seq:        p.Seq,
		Ref:        p.Ref,
	})
	return nil
}

// OnShutdown implements hooks.Shutdown: every subscriber is closed so
// readers drain and exit.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, val any) bool {
		sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		b.topics.UnsubscribeAll(sub.ID())
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("event broker shut down")
	return nil
}
