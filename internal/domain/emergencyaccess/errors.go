package emergencyaccess

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The error types below are the service's public failure taxonomy. Callers
// branch on them with errors.As; no error is converted into a different
// status on the way out.

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthenticationError reports that a requester or supervisor could not be
// resolved to a known user, or lacks the role the operation requires.
type AuthenticationError struct {
	UserID uuid.UUID
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("user %s: %s", e.UserID, e.Reason)
}

// NotFoundError reports a missing patient or access record.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStateError reports a transition not permitted from the record's
// current status.
type InvalidStateError struct {
	Current Status
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s access record in status %q", e.Op, e.Current)
}

// ExpiredAccessError reports an access attempt past the grant's expiry
// time, regardless of the stored status.
type ExpiredAccessError struct {
	AccessID  uuid.UUID
	ExpiredAt time.Time
}

func (e *ExpiredAccessError) Error() string {
	return fmt.Sprintf("access %s expired at %s", e.AccessID, e.ExpiredAt.Format(time.RFC3339))
}

// ConcurrencyConflictError reports a lost race: another active grant for
// the same (requester, patient, record) triple was created concurrently.
// It is raised by the store's uniqueness constraint, never by the advisory
// pre-check.
type ConcurrencyConflictError struct {
	RequesterID uuid.UUID
	PatientID   uuid.UUID
	RecordID    uuid.UUID
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("active emergency access already exists for requester %s, patient %s, record %s",
		e.RequesterID, e.PatientID, e.RecordID)
}

// InfrastructureError wraps a store or collaborator failure.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
