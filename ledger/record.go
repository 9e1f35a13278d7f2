// Package ledger implements the append-only position ledger: immutable
// placement records with a strictly increasing per-resource sequence, an
// owner-gated write path, and collaborator interfaces for coordinates,
// external transaction references, and resource metadata.
package ledger

import (
	"time"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
)

// Resource is a shared object whose position changes are recorded in the
// ledger. Only the designated owner may move it through SetPosition.
type Resource struct {
	conduct.Entity

	// ID is the caller-supplied resource identifier.
	ID string

	// OwnerID is the verified identity of the resource's owner.
	OwnerID string

	// Name is a short human-readable label.
	Name string

	// Description and Tags are produced by the metadata collaborator at
	// creation time. Empty when no Describer is configured.
	Description string
	Tags        []string
}

// Placement is one immutable entry in a resource's position history.
// Records are append-only: never edited, never compacted.
type Placement struct {
	// ID uniquely identifies the record.
	ID id.PlacementID

	// ResourceID is the resource this placement belongs to.
	ResourceID string

	// X, Y are the recorded coordinates.
	X int64
	Y int64

	// Seq is the per-resource order index. The store assigns it as
	// max(seq)+1 at append time; it strictly increases per resource.
	Seq int64

	// Ref is the opaque external transaction reference, stored for audit.
	Ref string

	// CreatedAt is when the record was appended.
	CreatedAt time.Time
}
