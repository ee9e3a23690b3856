package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/prompts"
	"github.com/fyrsmithlabs/coachd/internal/session"
)

const confirmMaxTokens = 256

// LLMConfirmer vets borderline phase transitions. It satisfies
// session.Confirmer; a returned error means "abstain".
type LLMConfirmer struct {
	client  *Client
	timeout time.Duration
}

// NewConfirmer creates the LLM-backed transition confirmer.
func NewConfirmer(client *Client, timeout time.Duration) *LLMConfirmer {
	return &LLMConfirmer{client: client, timeout: timeout}
}

// confirmResult mirrors the JSON the transition prompt asks for.
type confirmResult struct {
	ShouldTransition bool   `json:"should_transition"`
	Reasoning        string `json:"reasoning"`
}

// Confirm asks the model whether the borderline transition should happen.
func (c *LLMConfirmer) Confirm(ctx context.Context, cc session.ConfirmContext) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := prompts.Transition(prompts.TransitionInput{
		Phase:          cc.Phase,
		TurnsInPhase:   cc.TurnsInPhase,
		TurnsRemaining: cc.TurnsRemaining,
		Budget:         cc.Budget,
		RecentMessages: prompts.FormatHistory(cc.RecentTurns),
		Observations:   cc.Observations,
	})

	raw, err := c.client.CompleteDecision(ctx, prompt, confirmMaxTokens)
	if err != nil {
		return false, fmt.Errorf("confirmation: %w", err)
	}

	var result confirmResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return false, fmt.Errorf("confirmation: invalid response: %w", err)
	}
	return result.ShouldTransition, nil
}

var _ session.Confirmer = (*LLMConfirmer)(nil)
