package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// ── Session model ─────────────────────────────────────────────────

// participantRow is the JSONB shape of a single participant inside the
// session row. Participants travel with the session so a step commit
// touches exactly one row.
type participantRow struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Role      string    `json:"role"`
	Points    int64     `json:"points"`
	Bonus     int64     `json:"bonus"`
	X         *int64    `json:"x,omitempty"`
	Y         *int64    `json:"y,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sessionModel struct {
	bun.BaseModel `bun:"table:conduct_sessions"`

	ID           string    `bun:"id,pk"`
	IdentityKey  string    `bun:"identity_key,notnull,unique"`
	Participants []byte    `bun:"participants,notnull,type:jsonb"`
	Step         int64     `bun:"step,notnull,default:0"`
	PoolBalance  int64     `bun:"pool_balance,notnull,default:0"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toSessionModel(sess *session.Session) (*sessionModel, error) {
	rows := make([]participantRow, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		r := participantRow{
			ID:        p.ID.String(),
			Handle:    p.Handle,
			Role:      string(p.Role),
			Points:    p.Points,
			Bonus:     p.Bonus,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
		if p.Coords != nil {
			x, y := p.Coords.X, p.Coords.Y
			r.X, r.Y = &x, &y
		}
		rows = append(rows, r)
	}
	blob, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("conduct/bun: encode participants: %w", err)
	}

	return &sessionModel{
		ID:           sess.ID.String(),
		IdentityKey:  sess.IdentityKey,
		Participants: blob,
		Step:         sess.Step,
		PoolBalance:  sess.PoolBalance,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}, nil
}

func fromSessionModel(m *sessionModel) (*session.Session, error) {
	parsedID, err := id.ParseWithPrefix(m.ID, id.PrefixSession)
	if err != nil {
		return nil, fmt.Errorf("conduct/bun: parse session id %q: %w", m.ID, err)
	}

	var rows []participantRow
	if len(m.Participants) > 0 {
		if err := json.Unmarshal(m.Participants, &rows); err != nil {
			return nil, fmt.Errorf("conduct/bun: decode participants: %w", err)
		}
	}

	sess := &session.Session{
		Entity: conduct.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		IdentityKey: m.IdentityKey,
		Step:        m.Step,
		PoolBalance: m.PoolBalance,
	}

	for _, r := range rows {
		pid, pErr := id.ParseWithPrefix(r.ID, id.PrefixParticipant)
		if pErr != nil {
			return nil, fmt.Errorf("conduct/bun: parse participant id %q: %w", r.ID, pErr)
		}
		p := session.Participant{
			Entity: conduct.Entity{
				CreatedAt: r.CreatedAt,
				UpdatedAt: r.UpdatedAt,
			},
			ID:     pid,
			Handle: r.Handle,
			Role:   session.Role(r.Role),
			Points: r.Points,
			Bonus:  r.Bonus,
		}
		if r.X != nil && r.Y != nil {
			p.Coords = &session.Coords{X: *r.X, Y: *r.Y}
		}
		sess.Participants = append(sess.Participants, p)
	}

	return sess, nil
}

// ── Resource model ────────────────────────────────────────────────

type resourceModel struct {
	bun.BaseModel `bun:"table:conduct_resources"`

	ID          string    `bun:"id,pk"`
	OwnerID     string    `bun:"owner_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	Tags        []string  `bun:"tags,array"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toResourceModel(r *ledger.Resource) *resourceModel {
	return &resourceModel{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromResourceModel(m *resourceModel) *ledger.Resource {
	return &ledger.Resource{
		Entity: conduct.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		Description: m.Description,
		Tags:        m.Tags,
	}
}

// ── Placement model ───────────────────────────────────────────────

type placementModel struct {
	bun.BaseModel `bun:"table:conduct_placements"`

	ID         string    `bun:"id,pk"`
	ResourceID string    `bun:"resource_id,notnull"`
	X          int64     `bun:"x,notnull"`
	Y          int64     `bun:"y,notnull"`
	Seq        int64     `bun:"seq,notnull"`
	Ref        string    `bun:"ref"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toPlacementModel(p *ledger.Placement) *placementModel {
	return &placementModel{
		ID:         p.ID.String(),
		ResourceID: p.ResourceID,
		X:          p.X,
		Y:          p.Y,
		Seq:        p.Seq,
		Ref:        p.Ref,
		CreatedAt:  p.CreatedAt,
	}
}

func fromPlacementModel(m *placementModel) (ledger.Placement, error) {
	pid, err := id.ParseWithPrefix(m.ID, id.PrefixPlacement)
	if err != nil {
		return ledger.Placement{}, fmt.Errorf("conduct/bun: parse placement id %q: %w", m.ID, err)
	}
	return ledger.Placement{
		ID:         pid,
		ResourceID: m.ResourceID,
		X:          m.X,
		Y:          m.Y,
		Seq:        m.Seq,
		Ref:        m.Ref,
		CreatedAt:  m.CreatedAt,
	}, nil
}
