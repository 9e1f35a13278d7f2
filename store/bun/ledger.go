package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/ledger"
)

// appendAttempts bounds the seq-claim retry loop. Every unique-index
// collision means another append committed, so each retry observes a
// larger MAX(seq) and the loop makes progress.
const appendAttempts = 32

// CreateResource persists a resource.
func (s *Store) CreateResource(ctx context.Context, r *ledger.Resource) (*ledger.Resource, error) {
	m := toResourceModel(r)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("owner_id = EXCLUDED.owner_id").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("tags = EXCLUDED.tags").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("conduct/bun: create resource %q: %w", r.ID, err)
	}
	return fromResourceModel(m), nil
}

// GetResource retrieves a resource by id.
func (s *Store) GetResource(ctx context.Context, resourceID string) (*ledger.Resource, error) {
	m := new(resourceModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", resourceID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, conduct.ErrResourceNotFound
		}
		return nil, fmt.Errorf("conduct/bun: get resource %q: %w", resourceID, err)
	}
	return fromResourceModel(m), nil
}

// AppendPlacement claims the next sequence for the resource and inserts
// the record. The unique (resource_id, seq) constraint arbitrates
// concurrent appends: the loser recomputes MAX(seq)+1 and retries.
func (s *Store) AppendPlacement(ctx context.Context, p *ledger.Placement) (*ledger.Placement, error) {
	for attempt := 0; attempt < appendAttempts; attempt++ {
		var maxSeq int64
		err := s.db.NewSelect().
			TableExpr("conduct_placements").
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Where("resource_id = ?", p.ResourceID).
			Scan(ctx, &maxSeq)
		if err != nil {
			return nil, fmt.Errorf("conduct/bun: next seq for %q: %w", p.ResourceID, err)
		}

		stored := *p
		stored.Seq = maxSeq + 1
		stored.CreatedAt = time.Now().UTC()

		m := toPlacementModel(&stored)
		_, err = s.db.NewInsert().Model(m).Exec(ctx)
		if err != nil {
			if isDuplicateKey(err) {
				continue
			}
			return nil, fmt.Errorf("conduct/bun: append placement %q: %w", p.ResourceID, err)
		}
		return &stored, nil
	}
	return nil, fmt.Errorf("conduct/bun: append placement %q: seq contention exhausted %d attempts", p.ResourceID, appendAttempts)
}

// ListPlacements returns all records for the resource ascending by seq.
// An unknown resource yields an empty slice.
func (s *Store) ListPlacements(ctx context.Context, resourceID string) ([]ledger.Placement, error) {
	var models []placementModel
	err := s.db.NewSelect().Model(&models).
		Where("resource_id = ?", resourceID).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("conduct/bun: list placements %q: %w", resourceID, err)
	}

	out := make([]ledger.Placement, 0, len(models))
	for i := range models {
		p, convErr := fromPlacementModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, p)
	}
	return out, nil
}
