// Package reflection generates the post-session analysis: a narrative of
// what the session surfaced, an outcome classification, and the commitment
// if one was made.
package reflection

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/prompts"
	"github.com/fyrsmithlabs/coachd/internal/session"
)

const (
	maxRetries       = 2
	reflectMaxTokens = 1024

	strictJSONNudge = "\n\nIMPORTANT: Return ONLY valid JSON. No markdown, no explanations."
)

// Completer is the LLM call the generator needs. Satisfied by
// gateway.Client.
type Completer interface {
	CompleteDecision(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Generator produces reflections for completed sessions.
type Generator struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGenerator creates a reflection generator. Calls are bounded by timeout.
func NewGenerator(completer Completer, timeout time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, timeout: timeout, logger: logger}
}

// reflectionResult mirrors the JSON the reflection prompt asks for.
type reflectionResult struct {
	KeyObservations   string  `json:"key_observations"`
	Outcome           Outcome `json:"outcome_classification"`
	InsightsSummary   string  `json:"insights_summary"`
	Commitment        *string `json:"commitment"`
	SuggestedFollowup *string `json:"suggested_followup"`
}

func (r reflectionResult) valid() bool {
	return r.KeyObservations != "" && r.InsightsSummary != "" && r.Outcome.Valid()
}

// Generate builds the reflection for a finished session. Parsing or
// validation failures retry with a strict-JSON instruction appended; after
// the retries are spent a stub reflection is returned so ending a session
// never fails on reflection generation.
func (g *Generator) Generate(ctx context.Context, sess *session.Session, turns []session.Turn) *Reflection {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := prompts.Reflection(prompts.FormatHistory(turns))

	for attempt := 0; attempt <= maxRetries; attempt++ {
		p := prompt
		if attempt > 0 {
			p += strictJSONNudge
		}

		raw, err := g.completer.CompleteDecision(ctx, p, reflectMaxTokens)
		if err != nil {
			g.logger.Warn("reflection generation attempt failed",
				zap.String("session_id", sess.ID.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		var result reflectionResult
		if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil || !result.valid() {
			g.logger.Warn("reflection response invalid, retrying",
				zap.String("session_id", sess.ID.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		refl := &Reflection{
			SessionID:       sess.ID,
			KeyObservations: result.KeyObservations,
			Outcome:         result.Outcome,
			InsightsSummary: result.InsightsSummary,
			CreatedAt:       time.Now().UTC(),
		}
		if result.Commitment != nil {
			refl.Commitment = *result.Commitment
		}
		if result.SuggestedFollowup != nil {
			refl.SuggestedFollowup = *result.SuggestedFollowup
		}
		return refl
	}

	g.logger.Error("reflection generation exhausted retries, using stub",
		zap.String("session_id", sess.ID.String()),
	)
	return stubReflection(sess)
}

// stubReflection is the fallback when generation fails persistently. It
// keeps whatever the session's extracted signals already hold.
func stubReflection(sess *session.Session) *Reflection {
	return &Reflection{
		SessionID:       sess.ID,
		KeyObservations: "Unable to generate observations due to a processing error.",
		Outcome:         OutcomePartialProgress,
		InsightsSummary: "Session completed but reflection generation encountered an error.",
		Commitment:      sess.Signals.Commitment,
		CreatedAt:       time.Now().UTC(),
	}
}

// extractJSON strips markdown fences and surrounding prose from an LLM
// response, leaving the JSON payload.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "{") {
		return content
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
