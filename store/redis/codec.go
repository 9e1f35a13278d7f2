package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
)

// Wire records for msgpack encoding. IDs travel as strings because the
// typed ID wraps unexported state the codec cannot reflect over.

type participantRecord struct {
	ID        string    `msgpack:"id"`
	Handle    string    `msgpack:"handle"`
	Role      string    `msgpack:"role"`
	Points    int64     `msgpack:"points"`
	Bonus     int64     `msgpack:"bonus"`
	X         *int64    `msgpack:"x,omitempty"`
	Y         *int64    `msgpack:"y,omitempty"`
	CreatedAt time.Time `msgpack:"created_at"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

type sessionRecord struct {
	ID           string              `msgpack:"id"`
	IdentityKey  string              `msgpack:"identity_key"`
	Participants []participantRecord `msgpack:"participants"`
	Step         int64               `msgpack:"step"`
	PoolBalance  int64               `msgpack:"pool_balance"`
	CreatedAt    time.Time           `msgpack:"created_at"`
	UpdatedAt    time.Time           `msgpack:"updated_at"`
}

type placementRecord struct {
	ID         string    `msgpack:"id"`
	ResourceID string    `msgpack:"resource_id"`
	X          int64     `msgpack:"x"`
	Y          int64     `msgpack:"y"`
	Seq        int64     `msgpack:"seq"`
	Ref        string    `msgpack:"ref"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

type resourceRecord struct {
	ID          string    `msgpack:"id"`
	OwnerID     string    `msgpack:"owner_id"`
	Name        string    `msgpack:"name"`
	Description string    `msgpack:"description,omitempty"`
	Tags        []string  `msgpack:"tags,omitempty"`
	CreatedAt   time.Time `msgpack:"created_at"`
	UpdatedAt   time.Time `msgpack:"updated_at"`
}

func encodeSession(s *session.Session) ([]byte, error) {
	rec := sessionRecord{
		ID:          s.ID.String(),
		IdentityKey: s.IdentityKey,
		Step:        s.Step,
		PoolBalance: s.PoolBalance,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	for _, p := range s.Participants {
		pr := participantRecord{
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
			pr.X, pr.Y = &x, &y
		}
		rec.Participants = append(rec.Participants, pr)
	}
	return msgpack.Marshal(&rec)
}

func decodeSession(blob []byte) (*session.Session, error) {
	var rec sessionRecord
	if err := msgpack.Unmarshal(blob, &rec); err != nil {
		return nil, err
	}

	sid, err := id.ParseWithPrefix(rec.ID, id.PrefixSession)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	s := &session.Session{
		Entity:      conduct.Entity{CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt},
		ID:          sid,
		IdentityKey: rec.IdentityKey,
		Step:        rec.Step,
		PoolBalance: rec.PoolBalance,
	}
	for _, pr := range rec.Participants {
		pid, err := id.ParseWithPrefix(pr.ID, id.PrefixParticipant)
		if err != nil {
			return nil, fmt.Errorf("participant id: %w", err)
		}
		p := session.Participant{
			Entity: conduct.Entity{CreatedAt: pr.CreatedAt, UpdatedAt: pr.UpdatedAt},
			ID:     pid,
			Handle: pr.Handle,
			Role:   session.Role(pr.Role),
			Points: pr.Points,
			Bonus:  pr.Bonus,
		}
		if pr.X != nil && pr.Y != nil {
			p.Coords = &session.Coords{X: *pr.X, Y: *pr.Y}
		}
		s.Participants = append(s.Participants, p)
	}
	return s, nil
}

func encodePlacement(p *ledger.Placement) ([]byte, error) {
	return msgpack.Marshal(&placementRecord{
		ID:         p.ID.String(),
		ResourceID: p.ResourceID,
		X:          p.X,
		Y:          p.Y,
		Seq:        p.Seq,
		Ref:        p.Ref,
		CreatedAt:  p.CreatedAt,
	})
}

func decodePlacement(blob []byte) (ledger.Placement, error) {
	var rec placementRecord
	if err := msgpack.Unmarshal(blob, &rec); err != nil {
		return ledger.Placement{}, err
	}
	pid, err := id.ParseWithPrefix(rec.ID, id.PrefixPlacement)
	if err != nil {
		return ledger.Placement{}, fmt.Errorf("placement id: %w", err)
	}
	return ledger.Placement{
		ID:         pid,
		ResourceID: rec.ResourceID,
		X:          rec.X,
		Y:          rec.Y,
		Seq:        rec.Seq,
		Ref:        rec.Ref,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func encodeResource(r *ledger.Resource) ([]byte, error) {
	return msgpack.Marshal(&resourceRecord{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	})
}

func decodeResource(blob []byte) (*ledger.Resource, error) {
	var rec resourceRecord
	if err := msgpack.Unmarshal(blob, &rec); err != nil {
		return nil, err
	}
	return &ledger.Resource{
		Entity:      conduct.Entity{CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt},
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Name:        rec.Name,
		Description: rec.Description,
		Tags:        rec.Tags,
	}, nil
}
