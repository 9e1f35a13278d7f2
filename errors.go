package conduct

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("conduct: no store configured")
	ErrStoreClosed = errors.New("conduct: store closed")

	// Not found errors.
	ErrSessionNotFound     = errors.New("conduct: session not found")
	ErrParticipantNotFound = errors.New("conduct: participant not found")
	ErrResourceNotFound    = errors.New("conduct: resource not found")

	// Gate errors.
	ErrStepMismatch = errors.New("conduct: step counter mismatch")
	ErrStepConflict = errors.New("conduct: concurrent step commit")

	// Ledger errors.
	ErrPermissionDenied = errors.New("conduct: requester is not the resource owner")
	ErrSequenceConflict = errors.New("conduct: placement sequence conflict")

	// Collaborator errors.
	ErrUpstreamFailure = errors.New("conduct: upstream collaborator failure")

	// Throttling errors.
	ErrThrottled = errors.New("conduct: operation rate limit exceeded")
)
