// Package event provides a typed publish/subscribe broker for conduct
// lifecycle events. Event kinds and payload types are enumerated and
// statically checked; there are no string-keyed ad-hoc events and no
// ambient global state. The broker implements the hooks interfaces so it
// receives everything the gate, ledger, and stepper emit.
package event

import "time"

// Kind identifies the kind of lifecycle event.
type Kind string

const (
	// Session events.
	KindSessionCreated Kind = "session.created"
	KindStepCommitted  Kind = "step.committed"
	KindStepRejected   Kind = "step.rejected"

	// Flow events.
	KindStageStarted   Kind = "stage.started"
	KindStageCompleted Kind = "stage.completed"
	KindStageFailed    Kind = "stage.failed"
	KindFlowCompleted  Kind = "flow.completed"
	KindFlowFailed     Kind = "flow.failed"
	KindFlowCancelled  Kind = "flow.cancelled"

	// Ledger events.
	KindPlacementAppended Kind = "placement.appended"
)

// Event is the envelope sent to subscribers on a topic channel. Data
// holds exactly one of the payload types below, matching Kind.
type Event struct {
	// Kind identifies the lifecycle event.
	Kind Kind

	// Timestamp is when the event was emitted.
	Timestamp time.Time

	// Topic is the entity-specific channel this event belongs to.
	Topic string

	// Data is the typed payload: *SessionData for session events,
	// *FlowData for flow events, *PlacementData for ledger events.
	Data any
}

// SessionData is the payload for session lifecycle events.
type SessionData struct {
	IdentityKey  string
	Op           string
	Step         int64
	Participants int
	PoolBalance  int64
	Error        string
}

// FlowData is the payload for flow lifecycle events.
type FlowData struct {
	FlowID    string
	StageID   string
	ElapsedMs int64
	Error     string
}

// PlacementData is the payload for ledger events.
type PlacementData struct {
	ResourceID string
	X          int64
	Y          int64
	Seq        int64
	Ref        string
}
