package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/coachd/internal/phase"
)

var (
	// ErrSessionEnded is returned when a turn or end action targets a
	// session that already reached a terminal status.
	ErrSessionEnded = errors.New("session has ended")

	// ErrBudgetExceeded is returned when a turn would push the session
	// past its turn budget.
	ErrBudgetExceeded = errors.New("session turn budget exceeded")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
)

// Signals holds what extraction has surfaced from the conversation so far.
// Observations accumulate from Exploration onward; Commitment and KeyInsight
// are only ever set during Challenge.
type Signals struct {
	Observations []string `json:"observations"`
	Commitment   string   `json:"commitment,omitempty"`
	KeyInsight   string   `json:"key_insight,omitempty"`
}

// PhaseTurns counts the turns spent in each phase.
type PhaseTurns struct {
	Framing     int `json:"framing"`
	Exploration int `json:"exploration"`
	Challenge   int `json:"challenge"`
	Synthesis   int `json:"synthesis"`
}

// ForPhase returns the count for the given phase.
func (t PhaseTurns) ForPhase(p phase.Phase) int {
	switch p {
	case phase.Framing:
		return t.Framing
	case phase.Exploration:
		return t.Exploration
	case phase.Challenge:
		return t.Challenge
	case phase.Synthesis:
		return t.Synthesis
	}
	return 0
}

// Increment adds one turn to the given phase's count.
func (t *PhaseTurns) Increment(p phase.Phase) {
	switch p {
	case phase.Framing:
		t.Framing++
	case phase.Exploration:
		t.Exploration++
	case phase.Challenge:
		t.Challenge++
	case phase.Synthesis:
		t.Synthesis++
	}
}

// Session is a coaching dialogue in progress.
type Session struct {
	ID         uuid.UUID   `json:"id"`
	Topic      string      `json:"topic"`
	MaxTurns   int         `json:"max_turns"`
	Phase      phase.Phase `json:"phase"`
	TurnCount  int         `json:"turn_count"`
	PhaseTurns PhaseTurns  `json:"phase_turns"`
	Status     Status      `json:"status"`
	Signals    Signals     `json:"signals"`
	Degraded   bool        `json:"degraded"`
	CreatedAt  time.Time   `json:"created_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
}

// Ended reports whether the session reached a terminal status.
func (s *Session) Ended() bool {
	return s.Status != StatusActive
}

// TurnsRemaining returns how many turns the session has left.
func (s *Session) TurnsRemaining() int {
	return s.MaxTurns - s.TurnCount
}

// Turn is one conversation entry. Turns are append-only.
type Turn struct {
	ID         uuid.UUID   `json:"id"`
	SessionID  uuid.UUID   `json:"session_id"`
	Role       Role        `json:"role"`
	Phase      phase.Phase `json:"phase"`
	TurnNumber int         `json:"turn_number"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
}
