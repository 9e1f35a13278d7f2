package mongo

import (
	"fmt"
	"time"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// ── Session model ─────────────────────────────────────────────────

type participantDoc struct {
	ID        string    `bson:"id"`
	Handle    string    `bson:"handle"`
	Role      string    `bson:"role"`
	Points    int64     `bson:"points"`
	Bonus     int64     `bson:"bonus"`
	X         *int64    `bson:"x,omitempty"`
	Y         *int64    `bson:"y,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type sessionDoc struct {
	ID           string           `bson:"_id"`
	IdentityKey  string           `bson:"identity_key"`
	Participants []participantDoc `bson:"participants"`
	Step         int64            `bson:"step"`
	PoolBalance  int64            `bson:"pool_balance"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

func toSessionDoc(sess *session.Session) *sessionDoc {
	d := &sessionDoc{
		ID:          sess.ID.String(),
		IdentityKey: sess.IdentityKey,
		Step:        sess.Step,
		PoolBalance: sess.PoolBalance,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}
	d.Participants = toParticipantDocs(sess.Participants)
	return d
}

func toParticipantDocs(parts []session.Participant) []participantDoc {
	docs := make([]participantDoc, 0, len(parts))
	for _, p := range parts {
		pd := participantDoc{
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
			pd.X, pd.Y = &x, &y
		}
		docs = append(docs, pd)
	}
	return docs
}

func fromSessionDoc(d *sessionDoc) (*session.Session, error) {
	parsedID, err := id.ParseWithPrefix(d.ID, id.PrefixSession)
	if err != nil {
		return nil, fmt.Errorf("conduct/mongo: parse session id %q: %w", d.ID, err)
	}

	sess := &session.Session{
		Entity: conduct.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:          parsedID,
		IdentityKey: d.IdentityKey,
		Step:        d.Step,
		PoolBalance: d.PoolBalance,
	}

	for _, pd := range d.Participants {
		pid, pErr := id.ParseWithPrefix(pd.ID, id.PrefixParticipant)
		if pErr != nil {
			return nil, fmt.Errorf("conduct/mongo: parse participant id %q: %w", pd.ID, pErr)
		}
		p := session.Participant{
			Entity: conduct.Entity{
				CreatedAt: pd.CreatedAt,
				UpdatedAt: pd.UpdatedAt,
			},
			ID:     pid,
			Handle: pd.Handle,
			Role:   session.Role(pd.Role),
			Points: pd.Points,
			Bonus:  pd.Bonus,
		}
		if pd.X != nil && pd.Y != nil {
			p.Coords = &session.Coords{X: *pd.X, Y: *pd.Y}
		}
		sess.Participants = append(sess.Participants, p)
	}

	return sess, nil
}

// ── Resource model ────────────────────────────────────────────────

type resourceDoc struct {
	ID          string    `bson:"_id"`
	OwnerID     string    `bson:"owner_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description,omitempty"`
	Tags        []string  `bson:"tags,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func toResourceDoc(r *ledger.Resource) *resourceDoc {
	return &resourceDoc{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromResourceDoc(d *resourceDoc) *ledger.Resource {
	return &ledger.Resource{
		Entity: conduct.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Name:        d.Name,
		Description: d.Description,
		Tags:        d.Tags,
	}
}

// ── Placement model ───────────────────────────────────────────────

type placementDoc struct {
	ID         string    `bson:"_id"`
	ResourceID string    `bson:"resource_id"`
	X          int64     `bson:"x"`
	Y          int64     `bson:"y"`
	Seq        int64     `bson:"seq"`
	Ref        string    `bson:"ref,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toPlacementDoc(p *ledger.Placement) *placementDoc {
	return &placementDoc{
		ID:         p.ID.String(),
		ResourceID: p.ResourceID,
		X:          p.X,
		Y:          p.Y,
		Seq:        p.Seq,
		Ref:        p.Ref,
		CreatedAt:  p.CreatedAt,
	}
}

func fromPlacementDoc(d *placementDoc) (ledger.Placement, error) {
	pid, err := id.ParseWithPrefix(d.ID, id.PrefixPlacement)
	if err != nil {
		return ledger.Placement{}, fmt.Errorf("conduct/mongo: parse placement id %q: %w", d.ID, err)
	}
	return ledger.Placement{
		ID:         pid,
		ResourceID: d.ResourceID,
		X:          d.X,
		Y:          d.Y,
		Seq:        d.Seq,
		Ref:        d.Ref,
		CreatedAt:  d.CreatedAt,
	}, nil
}

// counterDoc backs the per-resource placement sequence.
type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
