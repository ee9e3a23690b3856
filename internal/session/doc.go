// Package session defines the coaching session domain model and the turn
// state machine.
//
// A session moves through the four dialogue phases under a fixed turn
// budget. Machine.ApplyTurn advances the model for one user turn: it spends
// a turn, runs signal extraction where the phase calls for it, and decides
// whether the session crosses into the next phase. The machine mutates only
// the in-memory session; persistence is the caller's job so a turn can be
// committed atomically with its conversation entries.
package session
