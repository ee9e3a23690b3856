package phase

// Signals is the evaluator's view of what the conversation has surfaced so
// far. The session machine derives it from extracted signals; the evaluator
// never inspects raw conversation text.
type Signals struct {
	// TopicEstablished marks that the learner has articulated a concrete
	// topic. Framing soft-readiness.
	TopicEstablished bool
	// ResistanceSurfaced marks that at least one pattern of avoidance or
	// resistance has been observed. Exploration soft-readiness.
	ResistanceSurfaced bool
	// Commitment is the learner's stated commitment to action, if any.
	// A non-empty commitment is the Challenge hard milestone.
	Commitment string
}

// Decision is the outcome of a transition evaluation.
type Decision struct {
	// Advance is true when the session should move to the next phase
	// before the coach responds.
	Advance bool
	// Borderline is true when the decision rests on soft readiness and is
	// worth confirming with the confirmation gateway.
	Borderline bool
	// Reason is a short human-readable explanation, recorded on the turn.
	Reason string
}

// Evaluator decides phase transitions for one session's budget.
type Evaluator struct {
	budget Budget
}

// NewEvaluator creates an evaluator over the session's allocated budget.
func NewEvaluator(budget Budget) *Evaluator {
	return &Evaluator{budget: budget}
}

// ShouldAdvance decides whether the session should leave the current phase
// after spending turnsInPhase turns in it with turnsRemaining turns left in
// the whole session.
//
// Rules, in priority order:
//
//  1. Synthesis never advances; it is the terminal phase and the session
//     ends by an explicit end action.
//  2. Budget exhaustion is a hard cap: once a phase has consumed its
//     allocation it advances no matter what confirmation says.
//  3. When the turns remaining drop to the Synthesis reserve, earlier
//     phases give way one step per turn so Synthesis is reachable without
//     ever skipping a phase.
//  4. A non-empty commitment completes Challenge immediately.
//  5. Soft readiness (topic established in Framing; resistance surfaced
//     after at least two Exploration turns) is borderline: confirmation
//     true advances, false stays, nil (gateway absent or failed) falls
//     back to the heuristic and advances.
func (e *Evaluator) ShouldAdvance(p Phase, turnsInPhase, turnsRemaining int, sig Signals, confirmation *bool) Decision {
	if p.Terminal() {
		return Decision{}
	}

	if turnsInPhase >= e.budget.ForPhase(p) {
		return Decision{Advance: true, Reason: "phase budget exhausted"}
	}

	if turnsRemaining <= e.budget.Synthesis {
		return Decision{Advance: true, Reason: "approaching session end"}
	}

	if p == Challenge && sig.Commitment != "" {
		return Decision{Advance: true, Reason: "commitment established"}
	}

	var ready bool
	var reason string
	switch p {
	case Framing:
		ready = sig.TopicEstablished
		reason = "topic established"
	case Exploration:
		ready = sig.ResistanceSurfaced && turnsInPhase >= 2
		reason = "resistance surfaced"
	}
	if !ready {
		return Decision{}
	}

	if confirmation != nil && !*confirmation {
		return Decision{Borderline: true, Reason: "readiness not confirmed"}
	}
	return Decision{Advance: true, Borderline: true, Reason: reason}
}
