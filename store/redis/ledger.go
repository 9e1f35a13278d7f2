package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/ledger"
)

// CreateResource persists a resource blob.
func (s *Store) CreateResource(ctx context.Context, r *ledger.Resource) (*ledger.Resource, error) {
	blob, err := encodeResource(r)
	if err != nil {
		return nil, fmt.Errorf("redis: encode resource %q: %w", r.ID, err)
	}
	if err := s.client.Set(ctx, resourceKey(r.ID), blob, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis: create resource %q: %w", r.ID, err)
	}
	return decodeResource(blob)
}

// GetResource loads a resource by id.
func (s *Store) GetResource(ctx context.Context, resourceID string) (*ledger.Resource, error) {
	blob, err := s.client.Get(ctx, resourceKey(resourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, conduct.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get resource %q: %w", resourceID, err)
	}
	r, err := decodeResource(blob)
	if err != nil {
		return nil, fmt.Errorf("redis: decode resource %q: %w", resourceID, err)
	}
	return r, nil
}

// AppendPlacement claims the next sequence with INCR and appends the
// record to the resource's list. INCR is atomic, so concurrent appends
// always receive distinct consecutive sequence values; the record list
// is re-sorted on read because list append order can trail seq order.
func (s *Store) AppendPlacement(ctx context.Context, p *ledger.Placement) (*ledger.Placement, error) {
	seq, err := s.client.Incr(ctx, seqKey(p.ResourceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: next seq for %q: %w", p.ResourceID, err)
	}

	stored := *p
	stored.Seq = seq
	stored.CreatedAt = time.Now().UTC()

	blob, err := encodePlacement(&stored)
	if err != nil {
		return nil, fmt.Errorf("redis: encode placement %q: %w", p.ResourceID, err)
	}
	if err := s.client.RPush(ctx, placementsKey(p.ResourceID), blob).Err(); err != nil {
		return nil, fmt.Errorf("redis: append placement %q: %w", p.ResourceID, err)
	}
	return &stored, nil
}

// ListPlacements returns all records for the resource ascending by seq.
func (s *Store) ListPlacements(ctx context.Context, resourceID string) ([]ledger.Placement, error) {
	blobs, err := s.client.LRange(ctx, placementsKey(resourceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list placements %q: %w", resourceID, err)
	}

	out := make([]ledger.Placement, 0, len(blobs))
	for _, blob := range blobs {
		p, err := decodePlacement([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("redis: decode placement %q: %w", resourceID, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
