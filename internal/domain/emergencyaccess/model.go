package emergencyaccess

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an emergency access grant.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// transitions is the authoritative state machine. A status absent from the
// map is terminal. Any transition not listed here is rejected.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusDenied},
	StatusApproved: {StatusRevoked, StatusExpired},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// UrgencyLevel is the caller-declared severity of the emergency. It drives
// auto-approval eligibility and the expiry duration of the grant.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// VitalSigns carries the clinical measurements supplied with a request.
// All fields are optional; absent measurements are nil.
type VitalSigns struct {
	HeartRate        *int     `json:"heart_rate,omitempty"`
	BloodPressureSys *int     `json:"blood_pressure_sys,omitempty"`
	BloodPressureDia *int     `json:"blood_pressure_dia,omitempty"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
}

// AccessRecord maps to the emergency_access table. One row per grant; rows
// are never deleted, terminal states remain for the audit trail.
type AccessRecord struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	RequesterID      uuid.UUID    `db:"requester_id" json:"requester_id"`
	PatientID        uuid.UUID    `db:"patient_id" json:"patient_id"`
	RecordID         uuid.UUID    `db:"record_id" json:"record_id"`
	Urgency          UrgencyLevel `db:"urgency" json:"urgency"`
	Justification    string       `db:"justification" json:"justification"`
	PatientCondition *string      `db:"patient_condition" json:"patient_condition,omitempty"`
	Vitals           *VitalSigns  `db:"vitals" json:"vitals,omitempty"`
	Status           Status       `db:"status" json:"status"`
	RequestTime      time.Time    `db:"request_time" json:"request_time"`
	ExpiryTime       time.Time    `db:"expiry_time" json:"expiry_time"`
	ApprovalTime     *time.Time   `db:"approval_time" json:"approval_time,omitempty"`
	SupervisorID     *uuid.UUID   `db:"supervisor_id" json:"supervisor_id,omitempty"`
	SupervisorName   *string      `db:"supervisor_name" json:"supervisor_name,omitempty"`
	AutoApproved     bool         `db:"auto_approved" json:"auto_approved"`
	VerificationCode *string      `db:"verification_code" json:"verification_code,omitempty"`
	AccessedRecords  []uuid.UUID  `db:"accessed_records" json:"accessed_records"`
	AccessCount      int          `db:"access_count" json:"access_count"`
	LastAccessTime   *time.Time   `db:"last_access_time" json:"last_access_time,omitempty"`
	RevokedBy        *uuid.UUID   `db:"revoked_by" json:"revoked_by,omitempty"`
	RevokedReason    *string      `db:"revoked_reason" json:"revoked_reason,omitempty"`
	RevokedAt        *time.Time   `db:"revoked_at" json:"revoked_at,omitempty"`
	WitnessID        *uuid.UUID   `db:"witness_id" json:"witness_id,omitempty"`
	FollowUpRequired bool         `db:"follow_up_required" json:"follow_up_required"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// Active reports whether the grant currently blocks new requests for the
// same (requester, patient, record) triple: pending or approved and not
// yet past its expiry time.
func (r *AccessRecord) Active(now time.Time) bool {
	if r.Status != StatusPending && r.Status != StatusApproved {
		return false
	}
	return r.ExpiryTime.After(now)
}

// DistinctAccessedRecords counts unique record ids in the access trail.
func (r *AccessRecord) DistinctAccessedRecords() int {
	seen := make(map[uuid.UUID]struct{}, len(r.AccessedRecords))
	for _, id := range r.AccessedRecords {
		seen[id] = struct{}{}
	}
	return len(seen)
}
