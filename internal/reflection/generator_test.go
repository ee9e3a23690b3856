package reflection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/coachd/internal/session"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeCompleter) CompleteDecision(_ context.Context, prompt string, _ int) (string, error) {
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func newEndedSession() *session.Session {
	return &session.Session{
		ID:      uuid.New(),
		Topic:   "fear of public speaking",
		Status:  session.StatusCompleted,
		Signals: session.Signals{Commitment: "volunteer for the next demo"},
	}
}

const validReflectionJSON = `{
	"key_observations": "The learner catastrophizes audience reactions and avoids visibility.",
	"outcome_classification": "breakthrough_achieved",
	"insights_summary": "Shifted from avoidance to a concrete commitment.",
	"commitment": "volunteer for the next demo",
	"suggested_followup": null
}`

func TestGenerate_Success(t *testing.T) {
	fc := &fakeCompleter{responses: []string{validReflectionJSON}}
	g := NewGenerator(fc, 5*time.Second, nil)

	refl := g.Generate(context.Background(), newEndedSession(), nil)

	assert.Equal(t, OutcomeBreakthrough, refl.Outcome)
	assert.Equal(t, "volunteer for the next demo", refl.Commitment)
	assert.Empty(t, refl.SuggestedFollowup)
	assert.Equal(t, 1, fc.calls)
}

func TestGenerate_FencedJSON(t *testing.T) {
	fc := &fakeCompleter{responses: []string{"```json\n" + validReflectionJSON + "\n```"}}
	g := NewGenerator(fc, 5*time.Second, nil)

	refl := g.Generate(context.Background(), newEndedSession(), nil)
	assert.Equal(t, OutcomeBreakthrough, refl.Outcome)
}

func TestGenerate_RetriesWithStrictNudge(t *testing.T) {
	fc := &fakeCompleter{responses: []string{"not json at all", validReflectionJSON}}
	g := NewGenerator(fc, 5*time.Second, nil)

	refl := g.Generate(context.Background(), newEndedSession(), nil)

	assert.Equal(t, OutcomeBreakthrough, refl.Outcome)
	require.Equal(t, 2, fc.calls)
	assert.NotContains(t, fc.prompts[0], "ONLY valid JSON")
	assert.Contains(t, fc.prompts[1], "ONLY valid JSON")
}

func TestGenerate_RejectsUnknownOutcome(t *testing.T) {
	bad := `{"key_observations": "x", "outcome_classification": "total_victory", "insights_summary": "y"}`
	fc := &fakeCompleter{responses: []string{bad, bad, bad}}
	g := NewGenerator(fc, 5*time.Second, nil)

	refl := g.Generate(context.Background(), newEndedSession(), nil)

	assert.Equal(t, 3, fc.calls, "initial attempt plus two retries")
	assert.Equal(t, OutcomePartialProgress, refl.Outcome, "stub fallback")
}

func TestGenerate_StubFallbackNeverFails(t *testing.T) {
	err := errors.New("api down")
	fc := &fakeCompleter{errs: []error{err, err, err}}
	g := NewGenerator(fc, 5*time.Second, nil)

	sess := newEndedSession()
	refl := g.Generate(context.Background(), sess, nil)

	require.NotNil(t, refl)
	assert.Equal(t, sess.ID, refl.SessionID)
	assert.Equal(t, OutcomePartialProgress, refl.Outcome)
	assert.Equal(t, "volunteer for the next demo", refl.Commitment,
		"stub keeps the extracted commitment")
}

func TestOutcome_Valid(t *testing.T) {
	assert.True(t, OutcomeBreakthrough.Valid())
	assert.True(t, OutcomePartialProgress.Valid())
	assert.True(t, OutcomeRootCause.Valid())
	assert.False(t, Outcome("shrug").Valid())
}
