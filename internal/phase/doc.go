// Package phase implements the coaching dialogue's phase model: the ordered
// four-phase progression (framing, exploration, challenge, synthesis), the
// turn budget allocator, and the transition evaluator.
//
// Everything in this package is pure. The allocator and evaluator take plain
// values and return decisions; persistence, LLM calls, and locking live in
// the session and coaching packages.
package phase
