package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
)

// Positioner supplies the coordinates a resource should move to. The
// concrete source (user input, physics, an external planner) is outside
// this package.
type Positioner interface {
	Position(ctx context.Context, resourceID string) (x, y int64, err error)
}

// Recorder commits a placement to an external recording service and
// returns an opaque transaction reference for audit.
type Recorder interface {
	Record(ctx context.Context, resourceID string, x, y int64) (ref string, err error)
}

// Describer produces descriptive text and tags for a resource from raw
// facts. Used at resource creation; optional.
type Describer interface {
	Describe(ctx context.Context, facts map[string]string) (description string, tags []string, err error)
}

// Emitter receives ledger lifecycle events. Implemented by the hooks
// registry adapter in the engine package.
type Emitter interface {
	EmitPlacementAppended(ctx context.Context, p *Placement)
}

// noopEmitter is used when no emitter is configured.
type noopEmitter struct{}

func (noopEmitter) EmitPlacementAppended(context.Context, *Placement) {}

// Ledger coordinates the append-only position history of resources.
type Ledger struct {
	store      Store
	logger     *slog.Logger
	emitter    Emitter
	positioner Positioner
	recorder   Recorder
	describer  Describer
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) LedgerOption {
	return func(l *Ledger) { l.emitter = e }
}

// WithPositioner sets the coordinate collaborator used by SetPosition.
func WithPositioner(p Positioner) LedgerOption {
	return func(l *Ledger) { l.positioner = p }
}

// WithRecorder sets the external recording collaborator used by
// SetPosition.
func WithRecorder(r Recorder) LedgerOption {
	return func(l *Ledger) { l.recorder = r }
}

// WithDescriber sets the metadata collaborator used by CreateResource.
func WithDescriber(d Describer) LedgerOption {
	return func(l *Ledger) { l.describer = d }
}

// NewLedger creates a position ledger over the given store.
func NewLedger(store Store, logger *slog.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		logger:  logger,
		emitter: noopEmitter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendPosition appends an immutable placement record for the resource.
// The store assigns the next sequence number; records are never edited or
// compacted afterwards.
func (l *Ledger) AppendPosition(ctx context.Context, resourceID string, x, y int64, ref string) (*Placement, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("ledger: append: empty resource id")
	}

	p := &Placement{
		ID:         id.NewPlacementID(),
		ResourceID: resourceID,
		X:          x,
		Y:          y,
		Ref:        ref,
	}

	stored, err := l.store.AppendPlacement(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("ledger: append %q: %w", resourceID, err)
	}

	l.logger.Debug("placement appended",
		slog.String("resource_id", stored.ResourceID),
		slog.Int64("seq", stored.Seq),
		slog.String("ref", stored.Ref),
	)
	l.emitter.EmitPlacementAppended(ctx, stored)

	return stored, nil
}

// History returns the resource's placement records ascending by sequence.
func (l *Ledger) History(ctx context.Context, resourceID string) ([]Placement, error) {
	records, err := l.store.ListPlacements(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("ledger: history %q: %w", resourceID, err)
	}
	return records, nil
}

// SetPosition moves a resource on behalf of a requester. The requester
// must be the resource's owner; otherwise conduct.ErrPermissionDenied is
// returned and nothing is appended. On success the coordinates come from
// the Positioner, the external reference from the Recorder, and the
// placement is appended in one store call.
func (l *Ledger) SetPosition(ctx context.Context, resourceID, requesterIdentity string) (*Placement, error) {
	r, err := l.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("ledger: set position %q: %w", resourceID, err)
	}
	if r.OwnerID != requesterIdentity {
		return nil, fmt.Errorf("ledger: set position %q by %q: %w",
			resourceID, requesterIdentity, conduct.ErrPermissionDenied)
	}

	if l.positioner == nil {
		return nil, fmt.Errorf("ledger: set position %q: no positioner configured", resourceID)
	}
	if l.recorder == nil {
		return nil, fmt.Errorf("ledger: set position %q: no recorder configured", resourceID)
	}

	x, y, err := l.positioner.Position(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("ledger: set position %q coordinates: %w: %w",
			resourceID, conduct.ErrUpstreamFailure, err)
	}

	ref, err := l.recorder.Record(ctx, resourceID, x, y)
	if err != nil {
		return nil, fmt.Errorf("ledger: set position %q record: %w: %w",
			resourceID, conduct.ErrUpstreamFailure, err)
	}

	return l.AppendPosition(ctx, resourceID, x, y, ref)
}

// CreateResource persists a new resource owned by ownerID. When a
// Describer is configured, facts are turned into the resource's
// description and tags before the write.
func (l *Ledger) CreateResource(ctx context.Context, resourceID, ownerID, name string, facts map[string]string) (*Resource, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("ledger: create resource: empty resource id")
	}
	if ownerID == "" {
		return nil, fmt.Errorf("ledger: create resource %q: empty owner id", resourceID)
	}

	r := &Resource{
		Entity:  conduct.NewEntity(),
		ID:      resourceID,
		OwnerID: ownerID,
		Name:    name,
	}

	if l.describer != nil {
		description, tags, err := l.describer.Describe(ctx, facts)
		if err != nil {
			return nil, fmt.Errorf("ledger: create resource %q metadata: %w: %w",
				resourceID, conduct.ErrUpstreamFailure, err)
		}
		r.Description = description
		r.Tags = tags
	}

	stored, err := l.store.CreateResource(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("ledger: create resource %q: %w", resourceID, err)
	}

	l.logger.Info("resource created",
		slog.String("resource_id", stored.ID),
		slog.String("owner_id", stored.OwnerID),
	)

	return stored, nil
}
