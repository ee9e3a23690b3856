package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/prompts"
	"github.com/fyrsmithlabs/coachd/internal/session"
)

// extractionWindow bounds how many recent turns extraction sees.
const extractionWindow = 6

const extractionMaxTokens = 512

// LLMExtractor pulls coaching signals out of the recent conversation.
// It satisfies session.Extractor; a returned error means "no update".
type LLMExtractor struct {
	client  *Client
	timeout time.Duration
}

// NewExtractor creates the LLM-backed signal extractor. Calls are bounded by
// timeout so a slow extraction cannot stall the turn.
func NewExtractor(client *Client, timeout time.Duration) *LLMExtractor {
	return &LLMExtractor{client: client, timeout: timeout}
}

// extractionResult mirrors the JSON the extraction prompt asks for.
type extractionResult struct {
	Observations []string `json:"observations"`
	Commitment   string   `json:"commitment"`
	KeyInsight   string   `json:"key_insight"`
}

// Extract runs signal extraction over the recent turns. During Exploration
// only observations are requested; Challenge asks for the commitment and key
// insight as well.
func (e *LLMExtractor) Extract(ctx context.Context, history []session.Turn, p phase.Phase, existing session.Signals) (session.Signals, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	recent := history
	if len(recent) > extractionWindow {
		recent = recent[len(recent)-extractionWindow:]
	}

	full := p == phase.Challenge
	prompt := prompts.Extraction(prompts.FormatHistory(recent), existing, full)

	raw, err := e.client.CompleteDecision(ctx, prompt, extractionMaxTokens)
	if err != nil {
		return existing, fmt.Errorf("extraction: %w", err)
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return existing, fmt.Errorf("extraction: invalid response: %w", err)
	}

	updated := existing
	if len(result.Observations) > 0 {
		updated.Observations = result.Observations
	}
	if full {
		if result.Commitment != "" {
			updated.Commitment = result.Commitment
		}
		if result.KeyInsight != "" {
			updated.KeyInsight = result.KeyInsight
		}
	}
	return updated, nil
}

var _ session.Extractor = (*LLMExtractor)(nil)
