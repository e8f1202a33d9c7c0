package emergencyaccess

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusPatch carries the fields written alongside a status transition.
// Nil fields are left untouched.
type StatusPatch struct {
	Status         Status
	ApprovalTime   *time.Time
	SupervisorID   *uuid.UUID
	SupervisorName *string
	RevokedBy      *uuid.UUID
	RevokedReason  *string
	RevokedAt      *time.Time
}

// HistoryFilter narrows access history queries. Nil fields match all.
type HistoryFilter struct {
	RequesterID *uuid.UUID
	PatientID   *uuid.UUID
	Status      *Status
}

// Repository is the access store. It is the sole enforcer of the
// at-most-one-active-grant invariant: Create returns a
// ConcurrencyConflictError when a pending or approved grant for the same
// (requester, patient, record) triple already exists, regardless of what
// any earlier advisory read observed.
type Repository interface {
	// Create persists a new grant.
	Create(ctx context.Context, rec *AccessRecord) error

	// GetByID loads a grant or returns a NotFoundError.
	GetByID(ctx context.Context, id uuid.UUID) (*AccessRecord, error)

	// FindActive returns the pending or approved grant for the triple,
	// or (nil, nil) when none exists. Advisory only; Create is the guard.
	FindActive(ctx context.Context, requesterID, patientID, recordID uuid.UUID) (*AccessRecord, error)

	// UpdateStatus applies a transition with compare-and-set semantics:
	// the row is modified only when its current status equals expected.
	// Returns InvalidStateError when the status moved underneath the
	// caller, NotFoundError when the id is unknown.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected Status, patch StatusPatch) (*AccessRecord, error)

	// RecordAccess appends recordID to the access trail, increments the
	// access count, and stamps the access time, all in one statement
	// guarded on status = approved.
	RecordAccess(ctx context.Context, id uuid.UUID, recordID uuid.UUID, at time.Time) (*AccessRecord, error)

	// SetFollowUpRequired marks the grant for post-hoc review.
	SetFollowUpRequired(ctx context.Context, id uuid.UUID) error

	// ListExpiredApproved returns approved grants whose expiry time is
	// strictly before now.
	ListExpiredApproved(ctx context.Context, now time.Time) ([]*AccessRecord, error)

	// List returns grants matching the filter, newest first, with the
	// total match count for pagination.
	List(ctx context.Context, filter HistoryFilter, limit, offset int) ([]*AccessRecord, int, error)
}
