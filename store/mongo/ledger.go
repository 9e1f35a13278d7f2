package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/ledger"
)

// CreateResource persists a resource, replacing any previous document
// with the same id.
func (s *Store) CreateResource(ctx context.Context, r *ledger.Resource) (*ledger.Resource, error) {
	doc := toResourceDoc(r)
	_, err := s.db.Collection(colResources).ReplaceOne(ctx,
		bson.M{"_id": r.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("conduct/mongo: create resource %q: %w", r.ID, err)
	}
	return fromResourceDoc(doc), nil
}

// GetResource retrieves a resource by id.
func (s *Store) GetResource(ctx context.Context, resourceID string) (*ledger.Resource, error) {
	var doc resourceDoc
	err := s.db.Collection(colResources).
		FindOne(ctx, bson.M{"_id": resourceID}).
		Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, conduct.ErrResourceNotFound
		}
		return nil, fmt.Errorf("conduct/mongo: get resource %q: %w", resourceID, err)
	}
	return fromResourceDoc(&doc), nil
}

// nextSeq atomically increments and returns the placement counter for
// the resource. The upsert creates the counter on first use.
func (s *Store) nextSeq(ctx context.Context, resourceID string) (int64, error) {
	var counter counterDoc
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": resourceID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("conduct/mongo: next seq for %q: %w", resourceID, err)
	}
	return counter.Seq, nil
}

// AppendPlacement claims the next sequence from the counter collection
// and inserts the record. The counter increment is atomic, so concurrent
// appends always receive distinct consecutive sequence values.
func (s *Store) AppendPlacement(ctx context.Context, p *ledger.Placement) (*ledger.Placement, error) {
	seq, err := s.nextSeq(ctx, p.ResourceID)
	if err != nil {
		return nil, err
	}

	stored := *p
	stored.Seq = seq
	stored.CreatedAt = now()

	_, err = s.db.Collection(colPlacements).InsertOne(ctx, toPlacementDoc(&stored))
	if err != nil {
		return nil, fmt.Errorf("conduct/mongo: append placement %q: %w", p.ResourceID, err)
	}
	return &stored, nil
}

// ListPlacements returns all records for the resource ascending by seq.
// An unknown resource yields an empty slice.
func (s *Store) ListPlacements(ctx context.Context, resourceID string) ([]ledger.Placement, error) {
	cursor, err := s.db.Collection(colPlacements).Find(ctx,
		bson.M{"resource_id": resourceID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("conduct/mongo: list placements %q: %w", resourceID, err)
	}
	defer cursor.Close(ctx)

	var out []ledger.Placement
	for cursor.Next(ctx) {
		var doc placementDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("conduct/mongo: decode placement %q: %w", resourceID, err)
		}
		p, convErr := fromPlacementDoc(&doc)
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("conduct/mongo: iterate placements %q: %w", resourceID, err)
	}
	if out == nil {
		out = []ledger.Placement{}
	}
	return out, nil
}
