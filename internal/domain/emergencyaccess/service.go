package emergencyaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emrchain/custody/internal/platform/audit"
	"github.com/emrchain/custody/internal/platform/directory"
	"github.com/emrchain/custody/internal/platform/records"
)

// Notifier delivers best-effort alerts. Failures are logged by the
// service, never surfaced to the caller of the triggering operation.
type Notifier interface {
	SendToRole(ctx context.Context, role, subject, body string) error
	SendToUser(ctx context.Context, userID uuid.UUID, subject, body string) error
}

// SecurityAdminRole receives high-risk access alerts.
const SecurityAdminRole = "security_admin"

// AccessRequest is the input to RequestAccess.
type AccessRequest struct {
	RequesterID      uuid.UUID    `json:"requester_id"`
	PatientID        uuid.UUID    `json:"patient_id"`
	RecordID         uuid.UUID    `json:"record_id"`
	Urgency          UrgencyLevel `json:"urgency"`
	Justification    string       `json:"justification"`
	PatientCondition string       `json:"patient_condition,omitempty"`
	Vitals           *VitalSigns  `json:"vitals,omitempty"`
	WitnessID        *uuid.UUID   `json:"witness_id,omitempty"`
}

// ClientInfo identifies the calling client for the audit trail.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// RequestResult is the outcome of RequestAccess. Existing is true when an
// active grant for the triple already covered the request and no new
// record was created.
type RequestResult struct {
	Record   *AccessRecord
	Existing bool
}

// ApprovalDecision is a supervisor's verdict on a pending grant.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Service implements the emergency access override workflow: request
// validation and policy evaluation, the supervisor approval workflow,
// revocation, record access with risk assessment, and expiry processing.
type Service struct {
	repo     Repository
	users    directory.Directory
	records  records.Service
	notifier Notifier
	audit    audit.Emitter
	policy   *PolicyEngine
	risk     *RiskEngine
	logger   zerolog.Logger
	nowFn    func() time.Time
}

func NewService(
	repo Repository,
	users directory.Directory,
	recs records.Service,
	notifier Notifier,
	emitter audit.Emitter,
	policy *PolicyEngine,
	risk *RiskEngine,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		records:  recs,
		notifier: notifier,
		audit:    emitter,
		policy:   policy,
		risk:     risk,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// RequestAccess validates the requester and patient, evaluates the access
// policy, and persists a new grant. If an active grant already exists for
// the triple it is returned instead of creating a duplicate.
func (s *Service) RequestAccess(ctx context.Context, req *AccessRequest, client ClientInfo) (*RequestResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	requester, err := s.users.Resolve(ctx, req.RequesterID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, &AuthenticationError{UserID: req.RequesterID, Reason: "requester is not a known user"}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "resolve requester", Err: err}
	}
	if requester.Role == "" {
		return nil, &AuthenticationError{UserID: req.RequesterID, Reason: "requester has no recognized role"}
	}

	if _, err := s.users.Resolve(ctx, req.PatientID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, &NotFoundError{Kind: "patient", ID: req.PatientID}
		}
		return nil, &InfrastructureError{Op: "resolve patient", Err: err}
	}

	now := s.nowFn()

	// Advisory pre-check: avoids a round trip for the common repeat
	// request. The unique index behind Create is the actual guard.
	existing, err := s.repo.FindActive(ctx, req.RequesterID, req.PatientID, req.RecordID)
	if err != nil {
		return nil, &InfrastructureError{Op: "find active grant", Err: err}
	}
	if existing != nil && existing.Active(now) {
		return &RequestResult{Record: existing, Existing: true}, nil
	}

	severity := ClassifyVitals(req.PatientCondition, req.Vitals)
	decision := s.policy.Evaluate(req.Urgency, requester.Role, severity)

	rec := &AccessRecord{
		ID:            uuid.New(),
		RequesterID:   req.RequesterID,
		PatientID:     req.PatientID,
		RecordID:      req.RecordID,
		Urgency:       req.Urgency,
		Justification: req.Justification,
		Vitals:        req.Vitals,
		Status:        StatusPending,
		RequestTime:   now,
		ExpiryTime:    now.Add(s.policy.ExpiryDuration(req.Urgency)),
		WitnessID:     req.WitnessID,
	}
	if req.PatientCondition != "" {
		rec.PatientCondition = &req.PatientCondition
	}

	if decision == DecisionAutoApprove {
		code, err := NewVerificationCode()
		if err != nil {
			return nil, &InfrastructureError{Op: "issue verification code", Err: err}
		}
		approvedAt := now
		rec.Status = StatusApproved
		rec.AutoApproved = true
		rec.VerificationCode = &code
		rec.ApprovalTime = &approvedAt
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		var conflict *ConcurrencyConflictError
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, &InfrastructureError{Op: "create access record", Err: err}
	}

	s.emit(ctx, &audit.Event{
		Name:      audit.EventAccessRequested,
		ActorID:   &rec.RequesterID,
		AccessID:  &rec.ID,
		PatientID: &rec.PatientID,
		RecordID:  &rec.RecordID,
		Details: map[string]any{
			"urgency":       string(rec.Urgency),
			"severity":      string(severity),
			"auto_approved": rec.AutoApproved,
			"expiry_time":   rec.ExpiryTime,
		},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Recorded:  now,
	})

	if rec.Status == StatusPending {
		s.notifyBestEffort(ctx, rec.ID, func() error {
			return s.notifier.SendToRole(ctx, "supervisor",
				"Emergency access pending review",
				fmt.Sprintf("Emergency access %s for patient %s requires approval (urgency: %s). Justification: %s",
					rec.ID, rec.PatientID, rec.Urgency, rec.Justification))
		})
	}

	return &RequestResult{Record: rec}, nil
}

// Approve applies a supervisor's decision to a pending grant.
func (s *Service) Approve(ctx context.Context, accessID, supervisorID uuid.UUID, decision ApprovalDecision) (*AccessRecord, error) {
	rec, err := s.repo.GetByID(ctx, accessID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		return nil, &InvalidStateError{Current: rec.Status, Op: "approve"}
	}

	supervisor, err := s.users.Resolve(ctx, supervisorID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, &AuthenticationError{UserID: supervisorID, Reason: "supervisor is not a known user"}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "resolve supervisor", Err: err}
	}
	if !s.policy.IsSupervisorRole(supervisor.Role) {
		return nil, &AuthenticationError{UserID: supervisorID, Reason: "role does not permit approving emergency access"}
	}

	target := StatusApproved
	eventName := audit.EventAccessApproved
	if !decision.Approved {
		target = StatusDenied
		eventName = audit.EventAccessDenied
	}

	now := s.nowFn()
	updated, err := s.repo.UpdateStatus(ctx, accessID, StatusPending, StatusPatch{
		Status:         target,
		ApprovalTime:   &now,
		SupervisorID:   &supervisor.ID,
		SupervisorName: &supervisor.Name,
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{"approved": decision.Approved}
	if decision.Reason != "" {
		details["reason"] = decision.Reason
	}
	s.emit(ctx, &audit.Event{
		Name:      eventName,
		ActorID:   &supervisorID,
		AccessID:  &accessID,
		PatientID: &updated.PatientID,
		RecordID:  &updated.RecordID,
		Details:   details,
		Recorded:  now,
	})

	verdict := "approved"
	if !decision.Approved {
		verdict = "denied"
	}
	s.notifyBestEffort(ctx, accessID, func() error {
		return s.notifier.SendToUser(ctx, updated.RequesterID,
			fmt.Sprintf("Emergency access %s", verdict),
			fmt.Sprintf("Your emergency access request %s was %s by %s.", accessID, verdict, supervisor.Name))
	})

	return updated, nil
}

// Revoke withdraws an approved grant, recording the actor and reason.
func (s *Service) Revoke(ctx context.Context, accessID, revokedBy uuid.UUID, reason string) (*AccessRecord, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required"}
	}

	rec, err := s.repo.GetByID(ctx, accessID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusApproved {
		return nil, &InvalidStateError{Current: rec.Status, Op: "revoke"}
	}

	now := s.nowFn()
	updated, err := s.repo.UpdateStatus(ctx, accessID, StatusApproved, StatusPatch{
		Status:        StatusRevoked,
		RevokedBy:     &revokedBy,
		RevokedReason: &reason,
		RevokedAt:     &now,
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, &audit.Event{
		Name:      audit.EventAccessRevoked,
		ActorID:   &revokedBy,
		AccessID:  &accessID,
		PatientID: &updated.PatientID,
		RecordID:  &updated.RecordID,
		Details:   map[string]any{"reason": reason},
		Recorded:  now,
	})

	s.notifyBestEffort(ctx, accessID, func() error {
		return s.notifier.SendToUser(ctx, updated.RequesterID,
			"Emergency access revoked",
			fmt.Sprintf("Your emergency access %s was revoked: %s", accessID, reason))
	})

	return updated, nil
}

// AccessRecordContent reads a medical record under an approved grant,
// updates the access trail, and runs the risk assessment. The expiry check
// is independent of the stored status: an approved-but-stale grant is
// rejected even when the sweeper has not yet run.
func (s *Service) AccessRecordContent(ctx context.Context, accessID, recordID uuid.UUID, client ClientInfo) (*records.Record, error) {
	rec, err := s.repo.GetByID(ctx, accessID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusApproved {
		return nil, &InvalidStateError{Current: rec.Status, Op: "access records under"}
	}

	now := s.nowFn()
	if rec.ExpiryTime.Before(now) {
		return nil, &ExpiredAccessError{AccessID: accessID, ExpiredAt: rec.ExpiryTime}
	}

	content, err := s.records.GetRecord(ctx, recordID)
	if errors.Is(err, records.ErrNotFound) {
		return nil, &NotFoundError{Kind: "medical record", ID: recordID}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "fetch medical record", Err: err}
	}

	updated, err := s.repo.RecordAccess(ctx, accessID, recordID, now)
	if err != nil {
		return nil, err
	}

	assessment := s.risk.Assess(RiskInput{
		AccessCount:     updated.AccessCount,
		DistinctRecords: updated.DistinctAccessedRecords(),
		Sensitive:       content.Sensitive,
		Urgency:         updated.Urgency,
	})
	if assessment.HighRisk {
		s.handleHighRisk(ctx, updated, content, assessment, client)
	}

	s.emit(ctx, &audit.Event{
		Name:      audit.EventRecordAccessed,
		ActorID:   &updated.RequesterID,
		AccessID:  &accessID,
		PatientID: &updated.PatientID,
		RecordID:  &recordID,
		Details: map[string]any{
			"access_count": updated.AccessCount,
			"sensitive":    content.Sensitive,
			"risk_score":   assessment.Score,
		},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Recorded:  now,
	})

	return content, nil
}

func (s *Service) handleHighRisk(ctx context.Context, rec *AccessRecord, content *records.Record, assessment RiskAssessment, client ClientInfo) {
	if err := s.repo.SetFollowUpRequired(ctx, rec.ID); err != nil {
		s.logger.Error().Err(err).Str("access_id", rec.ID.String()).
			Msg("failed to flag access for follow-up")
	}

	s.logger.Warn().
		Str("access_id", rec.ID.String()).
		Str("requester_id", rec.RequesterID.String()).
		Str("record_id", content.ID.String()).
		Int("access_count", rec.AccessCount).
		Int("risk_score", assessment.Score).
		Msg("high-risk emergency access detected")

	s.emit(ctx, &audit.Event{
		Name:      audit.EventHighRiskAlert,
		ActorID:   &rec.RequesterID,
		AccessID:  &rec.ID,
		PatientID: &rec.PatientID,
		RecordID:  &content.ID,
		Outcome:   "alert",
		Details: map[string]any{
			"access_count": rec.AccessCount,
			"risk_score":   assessment.Score,
			"sensitive":    content.Sensitive,
		},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Recorded:  s.nowFn(),
	})

	s.notifyBestEffort(ctx, rec.ID, func() error {
		return s.notifier.SendToRole(ctx, SecurityAdminRole,
			"High-risk emergency access alert",
			fmt.Sprintf("Requester %s accessed sensitive record %s under emergency grant %s (%d accesses, risk score %d).",
				rec.RequesterID, content.ID, rec.ID, rec.AccessCount, assessment.Score))
	})
}

// Get loads a single grant.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AccessRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// History returns grants matching the filter, newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter, limit, offset int) ([]*AccessRecord, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// ProcessExpired moves every approved grant past its expiry time to
// expired, emitting one audit event per grant. A run that finds no
// candidates changes nothing and logs nothing.
func (s *Service) ProcessExpired(ctx context.Context) (int, error) {
	now := s.nowFn()
	stale, err := s.repo.ListExpiredApproved(ctx, now)
	if err != nil {
		return 0, &InfrastructureError{Op: "list expired grants", Err: err}
	}

	processed := 0
	for _, rec := range stale {
		if _, err := s.repo.UpdateStatus(ctx, rec.ID, StatusApproved, StatusPatch{Status: StatusExpired}); err != nil {
			var state *InvalidStateError
			if errors.As(err, &state) {
				// Raced with a revocation or a concurrent sweep.
				continue
			}
			return processed, err
		}
		processed++

		s.emit(ctx, &audit.Event{
			Name:      audit.EventAccessExpired,
			AccessID:  &rec.ID,
			PatientID: &rec.PatientID,
			RecordID:  &rec.RecordID,
			Details:   map[string]any{"expiry_time": rec.ExpiryTime},
			Recorded:  now,
		})
	}

	if processed > 0 {
		s.logger.Info().Int("processed", processed).Msg("expired emergency access grants")
	}
	return processed, nil
}

func (s *Service) emit(ctx context.Context, e *audit.Event) {
	if err := s.audit.Emit(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("event", e.Name).Msg("audit emit failed")
	}
}

func (s *Service) notifyBestEffort(ctx context.Context, accessID uuid.UUID, send func() error) {
	if err := send(); err != nil {
		s.logger.Warn().Err(err).Str("access_id", accessID.String()).
			Msg("notification failed")
	}
}

func validateRequest(req *AccessRequest) error {
	if req.RequesterID == uuid.Nil {
		return &ValidationError{Field: "requester_id", Reason: "required"}
	}
	if req.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if req.RecordID == uuid.Nil {
		return &ValidationError{Field: "record_id", Reason: "required"}
	}
	if !req.Urgency.Valid() {
		return &ValidationError{Field: "urgency", Reason: "must be low, medium, high, or critical"}
	}
	if req.Justification == "" {
		return &ValidationError{Field: "justification", Reason: "required"}
	}
	return nil
}
