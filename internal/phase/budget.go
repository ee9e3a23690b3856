package phase

import "errors"

// ErrInvalidBudget is returned when a session is requested with a
// non-positive turn budget.
var ErrInvalidBudget = errors.New("max turns must be positive")

// Budget holds the number of turns allocated to each phase of a session.
type Budget struct {
	Framing     int `json:"framing"`
	Exploration int `json:"exploration"`
	Challenge   int `json:"challenge"`
	Synthesis   int `json:"synthesis"`
}

// ForPhase returns the allocation for the given phase.
func (b Budget) ForPhase(p Phase) int {
	switch p {
	case Framing:
		return b.Framing
	case Exploration:
		return b.Exploration
	case Challenge:
		return b.Challenge
	case Synthesis:
		return b.Synthesis
	}
	return 0
}

// Total returns the sum of all phase allocations. Never exceeds the maxTurns
// the budget was allocated from, and equals it for maxTurns >= 4.
func (b Budget) Total() int {
	return b.Framing + b.Exploration + b.Challenge + b.Synthesis
}

// Allocate distributes maxTurns across the four phases.
//
// Framing and Synthesis are bookends capped at 2 turns each; the remaining
// turns split evenly between Exploration and Challenge, with an odd turn
// going to Exploration. Sessions shorter than 4 turns cannot hold all four
// phases and use a fixed degenerate layout that keeps the early phases.
//
// Allocate is pure: equal inputs always produce equal budgets.
func Allocate(maxTurns int) (Budget, error) {
	if maxTurns <= 0 {
		return Budget{}, ErrInvalidBudget
	}

	switch maxTurns {
	case 1:
		return Budget{Framing: 1}, nil
	case 2:
		return Budget{Framing: 1, Exploration: 1}, nil
	case 3:
		return Budget{Framing: 1, Exploration: 1, Challenge: 1}, nil
	}

	framing := maxTurns / 4
	if framing > 2 {
		framing = 2
	}
	synthesis := framing

	variable := maxTurns - framing - synthesis
	exploration := variable/2 + variable%2
	challenge := variable / 2

	return Budget{
		Framing:     framing,
		Exploration: exploration,
		Challenge:   challenge,
		Synthesis:   synthesis,
	}, nil
}
