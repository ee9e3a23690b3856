// Package store provides SQLite-backed persistence for coaching sessions,
// turns, and reflections.
//
// The write paths the coaching service depends on are transactional:
// CommitTurn persists a whole turn (session state plus both conversation
// entries) in one transaction, and CompleteSession persists the terminal
// status together with the reflection. A crash between turns therefore never
// leaves a half-written turn behind.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/reflection"
	"github.com/fyrsmithlabs/coachd/internal/session"
)

// ErrNotFound is returned when a session or reflection does not exist.
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and creates tables if they don't
// exist. Use ":memory:" for an ephemeral store in tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		max_turns INTEGER NOT NULL,
		current_phase TEXT NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0,
		framing_turns INTEGER NOT NULL DEFAULT 0,
		exploration_turns INTEGER NOT NULL DEFAULT 0,
		challenge_turns INTEGER NOT NULL DEFAULT 0,
		synthesis_turns INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		observations TEXT NOT NULL DEFAULT '[]',
		commitment TEXT NOT NULL DEFAULT '',
		key_insight TEXT NOT NULL DEFAULT '',
		degraded INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		phase TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);

	CREATE TABLE IF NOT EXISTS reflections (
		session_id TEXT PRIMARY KEY,
		key_observations TEXT NOT NULL,
		outcome TEXT NOT NULL,
		insights_summary TEXT NOT NULL,
		commitment TEXT NOT NULL DEFAULT '',
		suggested_followup TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	obs, err := marshalObservations(sess.Signals.Observations)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, max_turns, current_phase, turn_count,
			framing_turns, exploration_turns, challenge_turns, synthesis_turns,
			status, observations, commitment, key_insight, degraded, created_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.Topic, sess.MaxTurns, sess.Phase.String(), sess.TurnCount,
		sess.PhaseTurns.Framing, sess.PhaseTurns.Exploration, sess.PhaseTurns.Challenge, sess.PhaseTurns.Synthesis,
		string(sess.Status), obs, sess.Signals.Commitment, sess.Signals.KeyInsight,
		boolToInt(sess.Degraded), sess.CreatedAt, sess.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns ErrNotFound when no session
// with that ID exists.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, max_turns, current_phase, turn_count,
			framing_turns, exploration_turns, challenge_turns, synthesis_turns,
			status, observations, commitment, key_insight, degraded, created_at, ended_at
		 FROM sessions WHERE id = ?`,
		id.String(),
	)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*session.Session, error) {
	var (
		sess     session.Session
		idStr    string
		phaseStr string
		status   string
		obs      string
		degraded int
		endedAt  sql.NullTime
	)

	err := row.Scan(&idStr, &sess.Topic, &sess.MaxTurns, &phaseStr, &sess.TurnCount,
		&sess.PhaseTurns.Framing, &sess.PhaseTurns.Exploration, &sess.PhaseTurns.Challenge, &sess.PhaseTurns.Synthesis,
		&status, &obs, &sess.Signals.Commitment, &sess.Signals.KeyInsight,
		&degraded, &sess.CreatedAt, &endedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	sess.Phase, err = phase.Parse(phaseStr)
	if err != nil {
		return nil, fmt.Errorf("parse session phase: %w", err)
	}
	sess.Status = session.Status(status)
	sess.Degraded = degraded != 0
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(obs), &sess.Signals.Observations); err != nil {
		return nil, fmt.Errorf("parse observations: %w", err)
	}

	return &sess, nil
}

// ListTurns returns a session's turns in conversation order.
func (s *Store) ListTurns(ctx context.Context, sessionID uuid.UUID) ([]session.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, phase, turn_number, content, created_at
		 FROM turns WHERE session_id = ?
		 ORDER BY turn_number, CASE role WHEN 'user' THEN 0 ELSE 1 END`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var (
			t        session.Turn
			idStr    string
			sidStr   string
			roleStr  string
			phaseStr string
		)
		if err := rows.Scan(&idStr, &sidStr, &roleStr, &phaseStr, &t.TurnNumber, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if t.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse turn id: %w", err)
		}
		if t.SessionID, err = uuid.Parse(sidStr); err != nil {
			return nil, fmt.Errorf("parse turn session id: %w", err)
		}
		t.Role = session.Role(roleStr)
		if t.Phase, err = phase.Parse(phaseStr); err != nil {
			return nil, fmt.Errorf("parse turn phase: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendTurn inserts a single turn outside of a turn commit. Used for the
// opening exchange at session start.
func (s *Store) AppendTurn(ctx context.Context, t *session.Turn) error {
	_, err := s.db.ExecContext(ctx, insertTurnSQL, turnArgs(t)...)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

const insertTurnSQL = `INSERT INTO turns (id, session_id, role, phase, turn_number, content, created_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?)`

func turnArgs(t *session.Turn) []any {
	return []any{
		t.ID.String(), t.SessionID.String(), string(t.Role), t.Phase.String(),
		t.TurnNumber, t.Content, t.CreatedAt,
	}
}

// CommitTurn persists the post-turn session state together with the user and
// coach turns in one transaction. Either the whole turn lands or none of it
// does.
func (s *Store) CommitTurn(ctx context.Context, sess *session.Session, userTurn, coachTurn *session.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit turn: %w", err)
	}
	defer tx.Rollback()

	if err := updateSessionTx(ctx, tx, sess); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertTurnSQL, turnArgs(userTurn)...); err != nil {
		return fmt.Errorf("insert user turn: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertTurnSQL, turnArgs(coachTurn)...); err != nil {
		return fmt.Errorf("insert coach turn: %w", err)
	}

	return tx.Commit()
}

// CompleteSession persists the terminal session state and its reflection in
// one transaction.
func (s *Store) CompleteSession(ctx context.Context, sess *session.Session, refl *reflection.Reflection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete session: %w", err)
	}
	defer tx.Rollback()

	if err := updateSessionTx(ctx, tx, sess); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reflections (session_id, key_observations, outcome, insights_summary, commitment, suggested_followup, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		refl.SessionID.String(), refl.KeyObservations, string(refl.Outcome),
		refl.InsightsSummary, refl.Commitment, refl.SuggestedFollowup, refl.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert reflection: %w", err)
	}

	return tx.Commit()
}

// GetReflection retrieves the reflection for a session. Returns ErrNotFound
// when none exists.
func (s *Store) GetReflection(ctx context.Context, sessionID uuid.UUID) (*reflection.Reflection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, key_observations, outcome, insights_summary, commitment, suggested_followup, created_at
		 FROM reflections WHERE session_id = ?`,
		sessionID.String(),
	)

	var (
		refl   reflection.Reflection
		sidStr string
	)
	err := row.Scan(&sidStr, &refl.KeyObservations, (*string)(&refl.Outcome),
		&refl.InsightsSummary, &refl.Commitment, &refl.SuggestedFollowup, &refl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reflection: %w", err)
	}
	if refl.SessionID, err = uuid.Parse(sidStr); err != nil {
		return nil, fmt.Errorf("parse reflection session id: %w", err)
	}
	return &refl, nil
}

func updateSessionTx(ctx context.Context, tx *sql.Tx, sess *session.Session) error {
	obs, err := marshalObservations(sess.Signals.Observations)
	if err != nil {
		return err
	}

	var endedAt any
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET current_phase = ?, turn_count = ?,
			framing_turns = ?, exploration_turns = ?, challenge_turns = ?, synthesis_turns = ?,
			status = ?, observations = ?, commitment = ?, key_insight = ?, degraded = ?, ended_at = ?
		 WHERE id = ?`,
		sess.Phase.String(), sess.TurnCount,
		sess.PhaseTurns.Framing, sess.PhaseTurns.Exploration, sess.PhaseTurns.Challenge, sess.PhaseTurns.Synthesis,
		string(sess.Status), obs, sess.Signals.Commitment, sess.Signals.KeyInsight,
		boolToInt(sess.Degraded), endedAt,
		sess.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalObservations(obs []string) (string, error) {
	if obs == nil {
		obs = []string{}
	}
	data, err := json.Marshal(obs)
	if err != nil {
		return "", fmt.Errorf("marshal observations: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
