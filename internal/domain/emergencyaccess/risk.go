package emergencyaccess

// RiskInput is the signal set scored after each successful record access.
type RiskInput struct {
	AccessCount     int
	DistinctRecords int
	Sensitive       bool
	Urgency         UrgencyLevel
}

// RiskAssessment is the derived risk signal for one access.
type RiskAssessment struct {
	Score            int  `json:"score"`
	HighRisk         bool `json:"high_risk"`
	FollowUpRequired bool `json:"follow_up_required"`
}

// urgencyWeight feeds the score: lower declared urgency with heavy access
// activity is the more suspicious pattern.
var urgencyWeight = map[UrgencyLevel]int{
	UrgencyLow:      3,
	UrgencyMedium:   2,
	UrgencyHigh:     1,
	UrgencyCritical: 0,
}

// RiskEngine scores record accesses made under an emergency grant. The
// access-count threshold is a configured policy parameter.
type RiskEngine struct {
	accessThreshold int
}

func NewRiskEngine(accessThreshold int) *RiskEngine {
	return &RiskEngine{accessThreshold: accessThreshold}
}

// Assess is a pure function of the input. The high-risk alert fires only
// when the access count exceeds the threshold AND the accessed record is
// flagged sensitive; either condition alone keeps the access below the
// alert line.
func (e *RiskEngine) Assess(in RiskInput) RiskAssessment {
	score := in.AccessCount + 2*in.DistinctRecords + urgencyWeight[in.Urgency]
	if in.Sensitive {
		score += 10
	}

	high := in.AccessCount > e.accessThreshold && in.Sensitive
	return RiskAssessment{
		Score:            score,
		HighRisk:         high,
		FollowUpRequired: high,
	}
}
