package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/prompts"
	"github.com/fyrsmithlabs/coachd/internal/session"
)

// ErrUpstream marks a failed model call whose result the caller cannot do
// without. Callers match it with errors.Is to distinguish upstream outages
// from their own failures.
var ErrUpstream = errors.New("upstream model request failed")

// RespondRequest carries everything the responder needs to produce the next
// coach utterance.
type RespondRequest struct {
	Phase          phase.Phase
	Topic          string
	MaxTurns       int
	TurnCount      int
	TurnsRemaining int
	TurnsInPhase   int
	Budget         phase.Budget
	Signals        session.Signals
	History        []session.Turn
	UserMessage    string
}

// Responder produces coach utterances. The core treats the content as
// opaque.
type Responder interface {
	Respond(ctx context.Context, req RespondRequest) (string, error)
}

// LLMResponder generates coach responses through the Anthropic client.
type LLMResponder struct {
	client *Client
}

// NewResponder creates the LLM-backed responder.
func NewResponder(client *Client) *LLMResponder {
	return &LLMResponder{client: client}
}

// Respond builds the phase prompt and asks the model for the coach's reply.
// Runs under the client's configured request timeout; errors surface to the
// caller because a turn without a coach reply is not a turn.
func (r *LLMResponder) Respond(ctx context.Context, req RespondRequest) (string, error) {
	prompt := prompts.Phase(req.Phase, prompts.PhaseInput{
		Topic:          req.Topic,
		MaxTurns:       req.MaxTurns,
		TurnCount:      req.TurnCount,
		TurnsRemaining: req.TurnsRemaining,
		TurnsInPhase:   req.TurnsInPhase,
		Budget:         req.Budget,
		Observations:   req.Signals.Observations,
		Commitment:     req.Signals.Commitment,
		KeyInsight:     req.Signals.KeyInsight,
		History:        prompts.FormatHistory(req.History),
		UserMessage:    req.UserMessage,
	})

	reply, err := r.client.Complete(ctx, prompts.System, prompt)
	if err != nil {
		return "", fmt.Errorf("responder: %w: %w", ErrUpstream, err)
	}
	return reply, nil
}

var _ Responder = (*LLMResponder)(nil)
