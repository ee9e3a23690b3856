package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/phase"
)

// confirmRecentTurns bounds how much conversation the confirmation gateway
// sees.
const confirmRecentTurns = 4

// Extractor pulls coaching signals out of the recent conversation. A failed
// extraction means "no update"; the machine absorbs the error and marks the
// session degraded.
type Extractor interface {
	Extract(ctx context.Context, history []Turn, p phase.Phase, existing Signals) (Signals, error)
}

// ConfirmContext is what the confirmation gateway sees when asked to vet a
// borderline transition.
type ConfirmContext struct {
	Phase          phase.Phase
	TurnsInPhase   int
	TurnsRemaining int
	Budget         phase.Budget
	RecentTurns    []Turn
	Observations   []string
}

// Confirmer vets borderline phase transitions. A failed confirmation means
// "abstain"; the heuristic decision stands.
type Confirmer interface {
	Confirm(ctx context.Context, cc ConfirmContext) (bool, error)
}

// TurnContext describes the session's shape after a turn was applied. The
// responder uses it to parameterize the coach prompt.
type TurnContext struct {
	Phase          phase.Phase
	PriorPhase     phase.Phase
	TurnsRemaining int
	BudgetForPhase int
	Budget         phase.Budget
	Reason         string
	Degraded       bool
}

// Machine applies user turns to sessions.
type Machine struct {
	extractor Extractor
	confirmer Confirmer
	logger    *zap.Logger
}

// NewMachine creates a turn machine. extractor and confirmer may be nil;
// the machine then runs on heuristics alone.
func NewMachine(extractor Extractor, confirmer Confirmer, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		extractor: extractor,
		confirmer: confirmer,
		logger:    logger,
	}
}

// ApplyTurn spends one turn of the session on userMessage: it updates the
// turn counters, extracts signals where the phase calls for it, and decides
// whether the session advances to the next phase.
//
// The turn is counted against the phase the session was in when the message
// arrived; a transition takes effect for the coach's reply. Returns
// ErrSessionEnded or ErrBudgetExceeded without touching the session when the
// turn is not allowed.
func (m *Machine) ApplyTurn(ctx context.Context, sess *Session, userMessage string, history []Turn) (*TurnContext, error) {
	if sess.Ended() {
		return nil, ErrSessionEnded
	}
	if sess.TurnCount >= sess.MaxTurns {
		return nil, ErrBudgetExceeded
	}

	budget, err := phase.Allocate(sess.MaxTurns)
	if err != nil {
		return nil, err
	}

	prior := sess.Phase
	sess.TurnCount++
	sess.PhaseTurns.Increment(prior)

	full := append(append([]Turn(nil), history...), Turn{
		SessionID:  sess.ID,
		Role:       RoleUser,
		Phase:      prior,
		TurnNumber: sess.TurnCount,
		Content:    userMessage,
	})

	m.extractSignals(ctx, sess, prior, full)

	decision := m.evaluate(ctx, sess, prior, budget, full)
	if decision.Advance {
		sess.Phase = prior.Next()
		m.logger.Info("phase transition",
			zap.String("session_id", sess.ID.String()),
			zap.Stringer("from", prior),
			zap.Stringer("to", sess.Phase),
			zap.String("reason", decision.Reason),
		)
	}

	return &TurnContext{
		Phase:          sess.Phase,
		PriorPhase:     prior,
		TurnsRemaining: sess.TurnsRemaining(),
		BudgetForPhase: budget.ForPhase(sess.Phase),
		Budget:         budget,
		Reason:         decision.Reason,
		Degraded:       sess.Degraded,
	}, nil
}

// extractSignals runs the extractor for phases that produce signals.
// Exploration yields observations only; Challenge may additionally set the
// commitment and key insight.
func (m *Machine) extractSignals(ctx context.Context, sess *Session, p phase.Phase, history []Turn) {
	if m.extractor == nil {
		return
	}
	if p != phase.Exploration && p != phase.Challenge {
		return
	}

	updated, err := m.extractor.Extract(ctx, history, p, sess.Signals)
	if err != nil {
		sess.Degraded = true
		m.logger.Warn("signal extraction failed, continuing degraded",
			zap.String("session_id", sess.ID.String()),
			zap.Stringer("phase", p),
			zap.Error(err),
		)
		return
	}

	if p == phase.Exploration {
		// Commitment and key insight only materialize under Challenge
		// pressure; outside it they are extractor noise.
		updated.Commitment = sess.Signals.Commitment
		updated.KeyInsight = sess.Signals.KeyInsight
	}
	sess.Signals = updated
}

// evaluate runs the transition heuristic, consulting the confirmation
// gateway only for borderline decisions.
func (m *Machine) evaluate(ctx context.Context, sess *Session, p phase.Phase, budget phase.Budget, history []Turn) phase.Decision {
	ev := phase.NewEvaluator(budget)
	sig := phase.Signals{
		TopicEstablished:   sess.Topic != "",
		ResistanceSurfaced: len(sess.Signals.Observations) > 0,
		Commitment:         sess.Signals.Commitment,
	}
	turnsInPhase := sess.PhaseTurns.ForPhase(p)

	decision := ev.ShouldAdvance(p, turnsInPhase, sess.TurnsRemaining(), sig, nil)
	if !decision.Borderline || m.confirmer == nil {
		return decision
	}

	recent := history
	if len(recent) > confirmRecentTurns {
		recent = recent[len(recent)-confirmRecentTurns:]
	}

	confirmed, err := m.confirmer.Confirm(ctx, ConfirmContext{
		Phase:          p,
		TurnsInPhase:   turnsInPhase,
		TurnsRemaining: sess.TurnsRemaining(),
		Budget:         budget,
		RecentTurns:    recent,
		Observations:   sess.Signals.Observations,
	})
	if err != nil {
		// Abstain: the heuristic decision stands.
		m.logger.Warn("transition confirmation failed, using heuristic",
			zap.String("session_id", sess.ID.String()),
			zap.Stringer("phase", p),
			zap.Error(err),
		)
		return decision
	}

	return ev.ShouldAdvance(p, turnsInPhase, sess.TurnsRemaining(), sig, &confirmed)
}
