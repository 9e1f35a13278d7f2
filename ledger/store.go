package ledger

import "context"

// Store persists resources and placement records.
//
// AppendPlacement is the write path for the ledger and must be safe under
// concurrent invocation for the same resource id: the store assigns
// p.Seq = max(seq)+1 for the resource and persists the record in one
// atomic step. Two concurrent appends for the same resource must receive
// distinct consecutive sequence numbers, never the same one.
type Store interface {
	// CreateResource persists a new resource. Returns the stored resource.
	CreateResource(ctx context.Context, r *Resource) (*Resource, error)

	// GetResource loads a resource by id.
	// Returns conduct.ErrResourceNotFound if absent.
	GetResource(ctx context.Context, resourceID string) (*Resource, error)

	// AppendPlacement assigns p.Seq and p.CreatedAt and persists the
	// record. The input's Seq and CreatedAt fields are ignored. Returns
	// the stored record with its assigned sequence.
	AppendPlacement(ctx context.Context, p *Placement) (*Placement, error)

	// ListPlacements returns all records for the resource ordered by Seq
	// ascending. An unknown resource id yields an empty slice, not an
	// error: history is defined for any id that was ever appended to.
	ListPlacements(ctx context.Context, resourceID string) ([]Placement, error)
}
