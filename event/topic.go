package event

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	session:<identityKey> — events for a specific session
//	flow:<flowID>         — events for a specific flow instance
//	resource:<resourceID> — ledger events for a specific resource
//	sessions              — all session lifecycle events
//	flows                 — all flow lifecycle events
//	firehose              — everything

const (
	TopicSessions = "sessions"
	TopicFlows    = "flows"
	TopicFirehose = "firehose"
)

// SessionTopic returns the topic name for a specific session.
func SessionTopic(identityKey string) string { return "session:" + identityKey }

// FlowTopic returns the topic name for a specific flow instance.
func FlowTopic(flowID string) string { return "flow:" + flowID }

// ResourceTopic returns the topic name for a specific resource.
func ResourceTopic(resourceID string) string { return "resource:" + resourceID }

// TopicRegistry manages subscriber sets per topic.
// It is safe for concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe adds a subscriber to a topic. Creates the topic if it
// doesn't exist.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// Unsubscribe removes a subscriber from a topic. Cleans up empty topics.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// UnsubscribeAll removes a subscriber from all topics.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		if sub, ok := subs[subscriberID]; ok {
			sub.removeTopic(topic)
			delete(subs, subscriberID)
		}
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// Broadcast sends an event to all subscribers on the listed topics,
// deduplicating subscribers on more than one of them. Returns the
// number of subscribers that received the event.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of active topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns all topics an event should be published to
// based on its kind and entity topic.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose}

	kind := string(evt.Kind)
	switch {
	case strings.HasPrefix(kind, "session."), strings.HasPrefix(kind, "step."):
		topics = append(topics, TopicSessions)
	case strings.HasPrefix(kind, "stage."), strings.HasPrefix(kind, "flow."):
		topics = append(topics, TopicFlows)
	}
	// Placement events only fan out to firehose and their resource topic.

	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}

	return topics
}

// ParseTopicEntity extracts the entity type and ID from a topic string.
// For example, "session:k1" returns ("session", "k1"). Returns ("", "")
// for global topics like "sessions" or "firehose".
func ParseTopicEntity(topic string) (entityType, entityID string) {
	idx := strings.IndexByte(topic, ':')
	if idx < 0 {
		return "", ""
	}
	return topic[:idx], topic[idx+1:]
}

// ValidateTopic checks whether a topic string is valid.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicSessions, TopicFlows, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("event: invalid topic %q", topic)
	}

	switch entityType {
	case "session", "flow", "resource":
		return nil
	default:
		return fmt.Errorf("event: unknown topic entity type %q", entityType)
	}
}
