// Package session defines step-gated sessions: per-identity-key sessions
// whose side-effecting operations are guarded by a monotonic step counter
// so each executes at most once per counter value.
package session

import (
	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
)

// Role tags a participant with its function inside a session.
type Role string

const (
	// RoleHost owns the session and its resources.
	RoleHost Role = "host"
	// RolePlayer is an active participant accumulating credit.
	RolePlayer Role = "player"
	// RoleSpectator observes without accumulating credit.
	RoleSpectator Role = "spectator"
)

// Coords is an optional 2D position attached to a participant.
type Coords struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Participant is one role-tagged actor belonging to a session. It carries
// two independent accumulators: Points (primary) and Bonus (secondary
// reward score). Participants are created when a session is created or a
// credit targets them, mutated only by guarded operations, and never
// deleted.
type Participant struct {
	conduct.Entity

	ID     id.ParticipantID `json:"id"`
	Handle string           `json:"handle"`
	Role   Role             `json:"role"`
	Points int64            `json:"points"`
	Bonus  int64            `json:"bonus"`
	Coords *Coords          `json:"coords,omitempty"`
}

// Session is a step-gated session keyed by a stable external identity key.
// The Step counter is monotonic non-decreasing and advances only as the
// committed result of a successful guarded operation. Zero means no
// guarded operation has committed yet.
type Session struct {
	conduct.Entity

	ID           id.SessionID  `json:"id"`
	IdentityKey  string        `json:"identity_key"`
	Participants []Participant `json:"participants"`
	Step         int64         `json:"step"`

	// PoolBalance is the session's aggregate accumulator, credited in
	// the same atomic commit as participant credits.
	PoolBalance int64 `json:"pool_balance"`
}

// Participant returns the participant with the given ID.
func (s *Session) Participant(pid id.ParticipantID) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ID == pid {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// ParticipantByHandle returns the participant with the given handle.
func (s *Session) ParticipantByHandle(handle string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].Handle == handle {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the session. Stores return clones so
// callers can mutate without racing against cached state.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		pc := p
		if p.Coords != nil {
			c := *p.Coords
			pc.Coords = &c
		}
		cp.Participants[i] = pc
	}
	return &cp
}
