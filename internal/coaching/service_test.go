package coaching

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/reflection"
	"github.com/fyrsmithlabs/coachd/internal/session"
	"github.com/fyrsmithlabs/coachd/internal/store"
)

type fakeResponder struct {
	reply string
	err   error
	calls int
	last  gateway.RespondRequest
}

func (f *fakeResponder) Respond(_ context.Context, req gateway.RespondRequest) (string, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return fmt.Sprintf("coach reply %d", f.calls), nil
}

type fakeReflector struct {
	calls int
}

func (f *fakeReflector) Generate(_ context.Context, sess *session.Session, _ []session.Turn) *reflection.Reflection {
	f.calls++
	return &reflection.Reflection{
		SessionID:       sess.ID,
		KeyObservations: "Avoids conflict by over-preparing.",
		Outcome:         reflection.OutcomeRootCause,
		InsightsSummary: "Preparation is the avoidance mechanism.",
		Commitment:      sess.Signals.Commitment,
		CreatedAt:       time.Now().UTC(),
	}
}

func newTestService(t *testing.T, responder gateway.Responder) Service {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(nil, st, session.NewMachine(nil, nil, nil), responder, &fakeReflector{}, nil)
	require.NoError(t, err)
	return svc
}

func TestStart_DefaultsAndOpeningMessage(t *testing.T) {
	fr := &fakeResponder{reply: "What would you like to work on?"}
	svc := newTestService(t, fr)

	resp, err := svc.Start(context.Background(), &StartRequest{Topic: "delegating work"})
	require.NoError(t, err)

	assert.Equal(t, 12, resp.MaxTurns, "zero max_turns picks the default")
	assert.Equal(t, phase.Framing, resp.Phase)
	assert.Equal(t, 0, resp.TurnCount)
	assert.Equal(t, 12, resp.TurnsRemaining)
	assert.Equal(t, session.StatusActive, resp.Status)
	assert.Equal(t, "What would you like to work on?", resp.Content)

	detail, err := svc.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, detail.Turns, 2, "topic turn plus opening coach turn")
	assert.Equal(t, session.RoleUser, detail.Turns[0].Role)
	assert.Equal(t, "delegating work", detail.Turns[0].Content)
	assert.Equal(t, session.RoleCoach, detail.Turns[1].Role)
	assert.Equal(t, 0, detail.Turns[1].TurnNumber)
}

func TestStart_RejectsOutOfRangeBudget(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	for _, maxTurns := range []int{3, 21, -1} {
		_, err := svc.Start(context.Background(), &StartRequest{Topic: "x", MaxTurns: maxTurns})
		assert.ErrorIs(t, err, phase.ErrInvalidBudget, "max_turns=%d", maxTurns)
	}
}

func TestStart_NoTopicSkipsTopicTurn(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	resp, err := svc.Start(context.Background(), &StartRequest{MaxTurns: 8})
	require.NoError(t, err)

	detail, err := svc.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, detail.Turns, 1)
	assert.Equal(t, session.RoleCoach, detail.Turns[0].Role)
}

func TestMessage_AppliesTurnAndCommits(t *testing.T) {
	fr := &fakeResponder{}
	svc := newTestService(t, fr)

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "saying no", MaxTurns: 12})
	require.NoError(t, err)

	resp, err := svc.Message(context.Background(), start.SessionID, "I always overcommit")
	require.NoError(t, err)

	assert.Equal(t, 1, resp.TurnCount)
	assert.Equal(t, 11, resp.TurnsRemaining)
	assert.NotEmpty(t, resp.Content)

	detail, err := svc.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Session.TurnCount)
	require.Len(t, detail.Turns, 4, "turn-0 pair plus one applied pair")
	assert.Equal(t, "I always overcommit", detail.Turns[2].Content)
	assert.Equal(t, session.RoleCoach, detail.Turns[3].Role)
	assert.Equal(t, 1, detail.Turns[3].TurnNumber)
}

func TestMessage_UserTurnKeepsPriorPhase(t *testing.T) {
	fr := &fakeResponder{}
	svc := newTestService(t, fr)

	// Topic is set, so Framing is ready to advance on the first turn.
	start, err := svc.Start(context.Background(), &StartRequest{Topic: "saying no", MaxTurns: 12})
	require.NoError(t, err)

	resp, err := svc.Message(context.Background(), start.SessionID, "That is the topic, yes")
	require.NoError(t, err)
	require.Equal(t, phase.Exploration, resp.Phase)

	detail, err := svc.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	turns := detail.Turns
	assert.Equal(t, phase.Framing, turns[len(turns)-2].Phase, "user turn is counted against the prior phase")
	assert.Equal(t, phase.Exploration, turns[len(turns)-1].Phase, "coach turn speaks from the new phase")
	assert.Equal(t, phase.Exploration, fr.last.Phase, "responder is prompted for the post-transition phase")
}

func TestMessage_EmptyContent(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "x"})
	require.NoError(t, err)

	_, err = svc.Message(context.Background(), start.SessionID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestMessage_UnknownSession(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	_, err := svc.Message(context.Background(), uuid.New(), "hello")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessage_BudgetExceeded(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "x", MaxTurns: 4})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := svc.Message(context.Background(), start.SessionID, fmt.Sprintf("turn %d", i+1))
		require.NoError(t, err)
	}

	_, err = svc.Message(context.Background(), start.SessionID, "one more")
	assert.ErrorIs(t, err, session.ErrBudgetExceeded)
}

func TestMessage_ResponderFailureLeavesSessionUnchanged(t *testing.T) {
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	good := &fakeResponder{}
	svc, err := NewService(nil, st, session.NewMachine(nil, nil, nil), good, &fakeReflector{}, nil)
	require.NoError(t, err)

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "x", MaxTurns: 12})
	require.NoError(t, err)

	good.err = errors.New("api unavailable")
	_, err = svc.Message(context.Background(), start.SessionID, "hello")
	require.Error(t, err)

	detail, err := svc.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Session.TurnCount, "failed turn must not be counted")
	assert.Len(t, detail.Turns, 2, "failed turn must not be persisted")
}

func TestEnd_GeneratesReflectionAndRejectsSecondEnd(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "x"})
	require.NoError(t, err)

	resp, err := svc.End(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, resp.Status)
	require.NotNil(t, resp.Reflection)
	assert.Equal(t, reflection.OutcomeRootCause, resp.Reflection.Outcome)

	_, err = svc.End(context.Background(), start.SessionID)
	assert.ErrorIs(t, err, session.ErrSessionEnded)

	_, err = svc.Message(context.Background(), start.SessionID, "still there?")
	assert.ErrorIs(t, err, session.ErrSessionEnded)
}

func TestReflection_RequiresEndedSession(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "x"})
	require.NoError(t, err)

	_, err = svc.Reflection(context.Background(), start.SessionID)
	assert.ErrorIs(t, err, ErrSessionActive)

	_, err = svc.End(context.Background(), start.SessionID)
	require.NoError(t, err)

	refl, err := svc.Reflection(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, start.SessionID, refl.SessionID)
}

func TestGet_IncludesReflectionAfterEnd(t *testing.T) {
	svc := newTestService(t, &fakeResponder{})

	start, err := svc.Start(context.Background(), &StartRequest{Topic: "x"})
	require.NoError(t, err)

	detail, err := svc.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, detail.Reflection)

	_, err = svc.End(context.Background(), start.SessionID)
	require.NoError(t, err)

	detail, err = svc.Get(context.Background(), start.SessionID)
	require.NoError(t, err)
	require.NotNil(t, detail.Reflection)
	require.NotNil(t, detail.Session.EndedAt)
}
