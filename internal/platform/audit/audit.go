// Package audit records one structured event for every emergency access
// transition. Persistence in the audit_log table is append-only; chain
// anchoring of the log is handled downstream.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Event names emitted by the emergency access service.
const (
	EventAccessRequested = "emergency_access_requested"
	EventAccessApproved  = "emergency_access_approved"
	EventAccessDenied    = "emergency_access_denied"
	EventAccessRevoked   = "emergency_access_revoked"
	EventAccessExpired   = "emergency_access_expired"
	EventRecordAccessed  = "emergency_record_accessed"
	EventHighRiskAlert   = "emergency_high_risk_alert"
)

// Event is one audit trail entry.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	AccessID  *uuid.UUID     `json:"access_id,omitempty"`
	PatientID *uuid.UUID     `json:"patient_id,omitempty"`
	RecordID  *uuid.UUID     `json:"record_id,omitempty"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Recorded  time.Time      `json:"recorded"`
}

// Emitter receives every audit event the service produces.
type Emitter interface {
	Emit(ctx context.Context, e *Event) error
}

// PGEmitter appends events to the audit_log table and mirrors them to the
// structured log.
type PGEmitter struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPGEmitter(pool *pgxpool.Pool, logger zerolog.Logger) *PGEmitter {
	return &PGEmitter{pool: pool, logger: logger}
}

func (p *PGEmitter) Emit(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Recorded.IsZero() {
		e.Recorded = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = "success"
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO audit_log (id, name, actor_id, access_id, patient_id, record_id,
			outcome, details, ip_address, user_agent, recorded)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.Name, e.ActorID, e.AccessID, e.PatientID, e.RecordID,
		e.Outcome, e.Details, e.IPAddress, e.UserAgent, e.Recorded)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("event", e.Name).
		Str("audit_id", e.ID.String()).
		Msg("audit event recorded")
	return nil
}

// LogEmitter writes events to the structured log only. Used in development
// and as the fallback when the audit store is not configured.
type LogEmitter struct {
	logger zerolog.Logger
}

func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(_ context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Recorded.IsZero() {
		e.Recorded = time.Now().UTC()
	}

	evt := l.logger.Info().
		Str("event", e.Name).
		Str("audit_id", e.ID.String()).
		Time("recorded", e.Recorded)
	if e.ActorID != nil {
		evt = evt.Str("actor_id", e.ActorID.String())
	}
	if e.AccessID != nil {
		evt = evt.Str("access_id", e.AccessID.String())
	}
	if e.PatientID != nil {
		evt = evt.Str("patient_id", e.PatientID.String())
	}
	if e.RecordID != nil {
		evt = evt.Str("record_id", e.RecordID.String())
	}
	evt.Msg("audit event")
	return nil
}
