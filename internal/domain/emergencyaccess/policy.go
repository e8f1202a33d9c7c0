package emergencyaccess

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of evaluating the access policy for a request.
type Decision string

const (
	DecisionAutoApprove Decision = "auto_approve"
	DecisionPending     Decision = "pending"
)

// VitalSeverity classifies the clinical picture supplied with a request.
type VitalSeverity string

const (
	SeverityRoutine         VitalSeverity = "routine"
	SeverityLifeThreatening VitalSeverity = "life_threatening"
)

// Life-threatening vital sign bounds. A measurement outside these bounds
// classifies the whole request as life-threatening.
const (
	heartRateCriticalLow  = 20
	heartRateCriticalHigh = 180
	systolicCriticalLow   = 60
	oxygenSatCriticalLow  = 85
)

// lifeThreateningConditions are patient-condition phrases that classify as
// life-threatening on their own, without vital sign measurements.
var lifeThreateningConditions = map[string]struct{}{
	"cardiac arrest":     {},
	"unresponsive":       {},
	"respiratory arrest": {},
	"anaphylaxis":        {},
}

// ClassifyVitals derives a severity from the patient condition and vital
// signs. Missing measurements never classify as life-threatening on their
// own; only out-of-bounds values or a listed condition do.
func ClassifyVitals(condition string, v *VitalSigns) VitalSeverity {
	if _, ok := lifeThreateningConditions[strings.ToLower(strings.TrimSpace(condition))]; ok {
		return SeverityLifeThreatening
	}
	if v == nil {
		return SeverityRoutine
	}
	if v.HeartRate != nil && (*v.HeartRate <= heartRateCriticalLow || *v.HeartRate >= heartRateCriticalHigh) {
		return SeverityLifeThreatening
	}
	if v.BloodPressureSys != nil && *v.BloodPressureSys < systolicCriticalLow {
		return SeverityLifeThreatening
	}
	if v.OxygenSaturation != nil && *v.OxygenSaturation < oxygenSatCriticalLow {
		return SeverityLifeThreatening
	}
	return SeverityRoutine
}

// PolicyRule is one row of the auto-approval decision table. A request
// matches when its urgency equals Urgency, its requester role is listed in
// Roles, and its classified severity equals Severity.
type PolicyRule struct {
	Urgency  UrgencyLevel
	Roles    []string
	Severity VitalSeverity
	Decision Decision
}

func (r PolicyRule) matches(urgency UrgencyLevel, role string, severity VitalSeverity) bool {
	if r.Urgency != urgency || r.Severity != severity {
		return false
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// PolicyConfig carries the tunable policy parameters. All of them are
// deployment configuration, not business constants.
type PolicyConfig struct {
	// ExpiryByUrgency is the grant lifetime per urgency level.
	ExpiryByUrgency map[UrgencyLevel]time.Duration
	// SupervisorRoles may approve or deny pending grants.
	SupervisorRoles []string
	// Rules is the decision table, evaluated first match wins. When no
	// rule matches the request stays pending for supervisor review.
	Rules []PolicyRule
}

// ClinicalRoles are the requester roles eligible for auto-approval under
// the default rule set.
var ClinicalRoles = []string{"doctor", "emergency_doctor", "nurse"}

// DefaultPolicyConfig returns the policy shipped with the service:
// critical urgency + clinical role + life-threatening vitals auto-approves,
// everything else goes to a supervisor.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ExpiryByUrgency: map[UrgencyLevel]time.Duration{
			UrgencyCritical: 1 * time.Hour,
			UrgencyHigh:     2 * time.Hour,
			UrgencyMedium:   4 * time.Hour,
			UrgencyLow:      8 * time.Hour,
		},
		SupervisorRoles: []string{"supervisor", "admin"},
		Rules: []PolicyRule{
			{
				Urgency:  UrgencyCritical,
				Roles:    ClinicalRoles,
				Severity: SeverityLifeThreatening,
				Decision: DecisionAutoApprove,
			},
		},
	}
}

// PolicyEngine evaluates the declarative decision table. Adding a new
// urgency/role/severity combination is a table entry, not a code path.
type PolicyEngine struct {
	cfg PolicyConfig
}

func NewPolicyEngine(cfg PolicyConfig) *PolicyEngine {
	return &PolicyEngine{cfg: cfg}
}

// Evaluate returns the decision for a request. First matching rule wins;
// the default is pending supervisor review.
func (e *PolicyEngine) Evaluate(urgency UrgencyLevel, role string, severity VitalSeverity) Decision {
	for _, rule := range e.cfg.Rules {
		if rule.matches(urgency, role, severity) {
			return rule.Decision
		}
	}
	return DecisionPending
}

// ExpiryDuration returns the grant lifetime for an urgency level.
func (e *PolicyEngine) ExpiryDuration(urgency UrgencyLevel) time.Duration {
	if d, ok := e.cfg.ExpiryByUrgency[urgency]; ok {
		return d
	}
	// Unknown urgency levels are rejected by validation before this point;
	// fall back to the most conservative window.
	return e.cfg.ExpiryByUrgency[UrgencyCritical]
}

// IsSupervisorRole reports whether the role may approve or deny grants.
func (e *PolicyEngine) IsSupervisorRole(role string) bool {
	for _, r := range e.cfg.SupervisorRoles {
		if r == role {
			return true
		}
	}
	return false
}

// NewVerificationCode issues the out-of-band confirmation token attached
// to auto-approved grants.
func NewVerificationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
