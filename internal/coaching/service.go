// Package coaching orchestrates sessions end to end: it owns session
// lifecycle, serializes turns per session, and commits each applied turn
// atomically.
package coaching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/reflection"
	"github.com/fyrsmithlabs/coachd/internal/session"
	"github.com/fyrsmithlabs/coachd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/coachd/internal/coaching"

// Service is the coaching session API.
type Service interface {
	// Start opens a session, persists it, and returns the coach's opening
	// message.
	Start(ctx context.Context, req *StartRequest) (*StartResponse, error)

	// Message applies one user turn: advances the session state machine,
	// produces the coach's reply, and commits both turns atomically.
	Message(ctx context.Context, sessionID uuid.UUID, content string) (*MessageResponse, error)

	// End completes a session and generates its reflection. Ending an
	// already-ended session returns session.ErrSessionEnded.
	End(ctx context.Context, sessionID uuid.UUID) (*EndResponse, error)

	// Get returns the session, its conversation, and the reflection once
	// the session has ended.
	Get(ctx context.Context, sessionID uuid.UUID) (*SessionDetail, error)

	// Reflection returns the stored reflection for an ended session.
	Reflection(ctx context.Context, sessionID uuid.UUID) (*reflection.Reflection, error)
}

// Reflector produces the post-session analysis. Satisfied by
// reflection.Generator.
type Reflector interface {
	Generate(ctx context.Context, sess *session.Session, turns []session.Turn) *reflection.Reflection
}

// Config holds session bounds for the service.
type Config struct {
	// DefaultMaxTurns is used when a start request does not name a budget.
	DefaultMaxTurns int
	// MinTurns and MaxTurns bound the accepted budget range.
	MinTurns int
	MaxTurns int
}

// DefaultServiceConfig returns the default session bounds.
func DefaultServiceConfig() *Config {
	return &Config{
		DefaultMaxTurns: 12,
		MinTurns:        4,
		MaxTurns:        20,
	}
}

type service struct {
	config    *Config
	store     *store.Store
	machine   *session.Machine
	responder gateway.Responder
	reflector Reflector
	logger    *zap.Logger

	// locks serializes turns per session. Values are *sync.Mutex.
	locks sync.Map

	tracer trace.Tracer
	meter  metric.Meter

	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	turnsApplied      metric.Int64Counter
	phaseTransitions  metric.Int64Counter
}

// NewService creates the coaching service.
func NewService(cfg *Config, st *store.Store, machine *session.Machine, responder gateway.Responder, reflector Reflector, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if machine == nil {
		return nil, errors.New("machine is required")
	}
	if responder == nil {
		return nil, errors.New("responder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		config:    cfg,
		store:     st,
		machine:   machine,
		responder: responder,
		reflector: reflector,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.sessionsStarted, err = s.meter.Int64Counter(
		"coachd.session.started_total",
		metric.WithDescription("Total number of coaching sessions started"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		s.logger.Warn("failed to create started counter", zap.Error(err))
	}

	s.sessionsCompleted, err = s.meter.Int64Counter(
		"coachd.session.completed_total",
		metric.WithDescription("Total number of coaching sessions completed"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		s.logger.Warn("failed to create completed counter", zap.Error(err))
	}

	s.turnsApplied, err = s.meter.Int64Counter(
		"coachd.session.turns_total",
		metric.WithDescription("Total number of user turns applied"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		s.logger.Warn("failed to create turns counter", zap.Error(err))
	}

	s.phaseTransitions, err = s.meter.Int64Counter(
		"coachd.session.transitions_total",
		metric.WithDescription("Total number of phase transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		s.logger.Warn("failed to create transitions counter", zap.Error(err))
	}
}

// lockFor returns the per-session mutex, creating it on first use.
func (s *service) lockFor(id uuid.UUID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *service) Start(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	ctx, span := s.tracer.Start(ctx, "coaching.start")
	defer span.End()

	maxTurns := req.MaxTurns
	if maxTurns == 0 {
		maxTurns = s.config.DefaultMaxTurns
	}
	if maxTurns < s.config.MinTurns || maxTurns > s.config.MaxTurns {
		return nil, fmt.Errorf("%w: max_turns %d outside [%d, %d]",
			phase.ErrInvalidBudget, maxTurns, s.config.MinTurns, s.config.MaxTurns)
	}
	budget, err := phase.Allocate(maxTurns)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:        uuid.New(),
		Topic:     strings.TrimSpace(req.Topic),
		MaxTurns:  maxTurns,
		Phase:     phase.Framing,
		Status:    session.StatusActive,
		CreatedAt: now,
	}
	span.SetAttributes(
		attribute.String("session.id", sess.ID.String()),
		attribute.Int("session.max_turns", maxTurns),
	)

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var history []session.Turn
	if sess.Topic != "" {
		topicTurn := &session.Turn{
			ID:         uuid.New(),
			SessionID:  sess.ID,
			Role:       session.RoleUser,
			Phase:      phase.Framing,
			TurnNumber: 0,
			Content:    sess.Topic,
			CreatedAt:  now,
		}
		if err := s.store.AppendTurn(ctx, topicTurn); err != nil {
			return nil, fmt.Errorf("record topic: %w", err)
		}
		history = append(history, *topicTurn)
	}

	opening, err := s.responder.Respond(ctx, gateway.RespondRequest{
		Phase:          phase.Framing,
		Topic:          sess.Topic,
		MaxTurns:       maxTurns,
		TurnCount:      0,
		TurnsRemaining: maxTurns,
		TurnsInPhase:   0,
		Budget:         budget,
		History:        history,
		UserMessage:    sess.Topic,
	})
	if err != nil {
		return nil, err
	}

	coachTurn := &session.Turn{
		ID:         uuid.New(),
		SessionID:  sess.ID,
		Role:       session.RoleCoach,
		Phase:      phase.Framing,
		TurnNumber: 0,
		Content:    opening,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.AppendTurn(ctx, coachTurn); err != nil {
		return nil, fmt.Errorf("record opening message: %w", err)
	}

	if s.sessionsStarted != nil {
		s.sessionsStarted.Add(ctx, 1)
	}
	s.logger.Info("session started",
		zap.String("session_id", sess.ID.String()),
		zap.Int("max_turns", maxTurns),
	)

	return &StartResponse{
		SessionID:      sess.ID,
		Phase:          sess.Phase,
		MaxTurns:       maxTurns,
		TurnCount:      0,
		TurnsRemaining: maxTurns,
		Status:         sess.Status,
		Content:        opening,
	}, nil
}

func (s *service) Message(ctx context.Context, sessionID uuid.UUID, content string) (*MessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "coaching.message")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	tc, err := s.machine.ApplyTurn(ctx, sess, content, history)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Stringer("session.phase", tc.Phase),
		attribute.Int("session.turn", sess.TurnCount),
	)

	now := time.Now().UTC()
	userTurn := &session.Turn{
		ID:         uuid.New(),
		SessionID:  sess.ID,
		Role:       session.RoleUser,
		Phase:      tc.PriorPhase,
		TurnNumber: sess.TurnCount,
		Content:    content,
		CreatedAt:  now,
	}

	reply, err := s.responder.Respond(ctx, gateway.RespondRequest{
		Phase:          tc.Phase,
		Topic:          sess.Topic,
		MaxTurns:       sess.MaxTurns,
		TurnCount:      sess.TurnCount,
		TurnsRemaining: tc.TurnsRemaining,
		TurnsInPhase:   sess.PhaseTurns.ForPhase(tc.Phase),
		Budget:         tc.Budget,
		Signals:        sess.Signals,
		History:        append(history, *userTurn),
		UserMessage:    content,
	})
	if err != nil {
		// Nothing was committed; the stored session is untouched.
		return nil, err
	}

	coachTurn := &session.Turn{
		ID:         uuid.New(),
		SessionID:  sess.ID,
		Role:       session.RoleCoach,
		Phase:      tc.Phase,
		TurnNumber: sess.TurnCount,
		Content:    reply,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.CommitTurn(ctx, sess, userTurn, coachTurn); err != nil {
		return nil, fmt.Errorf("commit turn: %w", err)
	}

	if s.turnsApplied != nil {
		s.turnsApplied.Add(ctx, 1, metric.WithAttributes(
			attribute.Stringer("phase", tc.PriorPhase),
		))
	}
	if tc.Phase != tc.PriorPhase && s.phaseTransitions != nil {
		s.phaseTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.Stringer("from", tc.PriorPhase),
			attribute.Stringer("to", tc.Phase),
		))
	}

	return &MessageResponse{
		Content:        reply,
		Phase:          tc.Phase,
		TurnCount:      sess.TurnCount,
		TurnsRemaining: tc.TurnsRemaining,
		Degraded:       tc.Degraded,
	}, nil
}

func (s *service) End(ctx context.Context, sessionID uuid.UUID) (*EndResponse, error) {
	ctx, span := s.tracer.Start(ctx, "coaching.end")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, session.ErrSessionEnded
	}

	turns, err := s.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var refl *reflection.Reflection
	if s.reflector != nil {
		refl = s.reflector.Generate(ctx, sess, turns)
	} else {
		refl = &reflection.Reflection{
			SessionID:       sess.ID,
			KeyObservations: "No reflection generator configured.",
			Outcome:         reflection.OutcomePartialProgress,
			InsightsSummary: "Session completed without reflection generation.",
			Commitment:      sess.Signals.Commitment,
			CreatedAt:       time.Now().UTC(),
		}
	}

	ended := time.Now().UTC()
	sess.Status = session.StatusCompleted
	sess.EndedAt = &ended

	if err := s.store.CompleteSession(ctx, sess, refl); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	if s.sessionsCompleted != nil {
		s.sessionsCompleted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(refl.Outcome)),
		))
	}
	s.logger.Info("session completed",
		zap.String("session_id", sess.ID.String()),
		zap.Int("turn_count", sess.TurnCount),
		zap.String("outcome", string(refl.Outcome)),
	)

	return &EndResponse{
		SessionID:  sess.ID,
		Status:     sess.Status,
		Reflection: refl,
	}, nil
}

func (s *service) Get(ctx context.Context, sessionID uuid.UUID) (*SessionDetail, error) {
	ctx, span := s.tracer.Start(ctx, "coaching.get")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	detail := &SessionDetail{Session: sess, Turns: turns}
	if sess.Ended() {
		refl, err := s.store.GetReflection(ctx, sessionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load reflection: %w", err)
		}
		detail.Reflection = refl
	}
	return detail, nil
}

func (s *service) Reflection(ctx context.Context, sessionID uuid.UUID) (*reflection.Reflection, error) {
	ctx, span := s.tracer.Start(ctx, "coaching.reflection")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Ended() {
		return nil, ErrSessionActive
	}
	return s.store.GetReflection(ctx, sessionID)
}
