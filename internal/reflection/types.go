package reflection

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a session ended.
type Outcome string

const (
	OutcomeBreakthrough    Outcome = "breakthrough_achieved"
	OutcomePartialProgress Outcome = "partial_progress"
	OutcomeRootCause       Outcome = "root_cause_identified"
)

// Valid reports whether o is a known classification.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeBreakthrough, OutcomePartialProgress, OutcomeRootCause:
		return true
	}
	return false
}

// Reflection is the post-session analysis stored alongside a completed
// session.
type Reflection struct {
	SessionID         uuid.UUID `json:"session_id"`
	KeyObservations   string    `json:"key_observations"`
	Outcome           Outcome   `json:"outcome_classification"`
	InsightsSummary   string    `json:"insights_summary"`
	Commitment        string    `json:"commitment,omitempty"`
	SuggestedFollowup string    `json:"suggested_followup,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
