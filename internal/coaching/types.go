package coaching

import (
	"errors"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/reflection"
	"github.com/fyrsmithlabs/coachd/internal/session"
)

var (
	// ErrEmptyMessage is returned when a message turn carries no content.
	ErrEmptyMessage = errors.New("message content must not be empty")

	// ErrSessionActive is returned when a reflection is requested for a
	// session that has not ended yet.
	ErrSessionActive = errors.New("session is still active")
)

// StartRequest opens a new coaching session.
type StartRequest struct {
	// Topic is the learner's stated subject, used to seed the dialogue.
	Topic string `json:"topic"`
	// MaxTurns is the session turn budget. Zero selects the configured
	// default; out-of-range values are rejected.
	MaxTurns int `json:"max_turns"`
}

// StartResponse describes a freshly started session and the coach's opening
// message.
type StartResponse struct {
	SessionID      uuid.UUID      `json:"session_id"`
	Phase          phase.Phase    `json:"phase"`
	MaxTurns       int            `json:"max_turns"`
	TurnCount      int            `json:"turn_count"`
	TurnsRemaining int            `json:"turns_remaining"`
	Status         session.Status `json:"status"`
	Content        string         `json:"content"`
}

// MessageResponse is the coach's reply to one user turn.
type MessageResponse struct {
	Content        string      `json:"content"`
	Phase          phase.Phase `json:"phase"`
	TurnCount      int         `json:"turn_count"`
	TurnsRemaining int         `json:"turns_remaining"`
	Degraded       bool        `json:"degraded,omitempty"`
}

// EndResponse reports the terminal session state and its reflection.
type EndResponse struct {
	SessionID  uuid.UUID              `json:"session_id"`
	Status     session.Status         `json:"status"`
	Reflection *reflection.Reflection `json:"reflection"`
}

// SessionDetail is the full view of a session: state, conversation, and the
// reflection once the session has ended.
type SessionDetail struct {
	Session    *session.Session       `json:"session"`
	Turns      []session.Turn         `json:"turns"`
	Reflection *reflection.Reflection `json:"reflection,omitempty"`
}
