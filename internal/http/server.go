// Package http exposes the coaching API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/session"
	"github.com/fyrsmithlabs/coachd/internal/store"
)

// Server provides HTTP endpoints for coachd.
type Server struct {
	echo    *echo.Echo
	service coaching.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc coaching.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("coaching service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8220,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: svc,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleStartSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/messages", s.handleMessage)
	v1.POST("/sessions/:id/end", s.handleEndSession)
	v1.GET("/sessions/:id/reflection", s.handleGetReflection)
}

// Echo exposes the underlying router so callers can attach extra handlers,
// such as the Prometheus endpoint.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// MessageRequest is the request body for POST /api/v1/sessions/:id/messages.
type MessageRequest struct {
	Content string `json:"content"`
}

// ErrorResponse is the error body for every failed request.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStartSession opens a new coaching session.
func (s *Server) handleStartSession(c echo.Context) error {
	var req coaching.StartRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid start request", zap.Error(err))
		return errorJSON(c, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
	}

	resp, err := s.service.Start(c.Request().Context(), &req)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// handleMessage applies one user turn to a session.
func (s *Server) handleMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	}

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid message request", zap.Error(err))
		return errorJSON(c, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
	}

	resp, err := s.service.Message(c.Request().Context(), id, req.Content)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleEndSession completes a session and returns its reflection.
func (s *Server) handleEndSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	}

	resp, err := s.service.End(c.Request().Context(), id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleGetSession returns the session, its conversation, and the reflection
// once the session has ended.
func (s *Server) handleGetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	}

	detail, err := s.service.Get(c.Request().Context(), id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// handleGetReflection returns the stored reflection for an ended session.
func (s *Server) handleGetReflection(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	}

	refl, err := s.service.Reflection(c.Request().Context(), id)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, refl)
}

// errorResponse maps service errors to HTTP status codes and error codes.
func (s *Server) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, session.ErrSessionEnded):
		return errorJSON(c, http.StatusBadRequest, "session has already ended", "SESSION_ALREADY_ENDED")
	case errors.Is(err, session.ErrBudgetExceeded):
		return errorJSON(c, http.StatusConflict, "session turn budget exhausted", "BUDGET_EXCEEDED")
	case errors.Is(err, coaching.ErrEmptyMessage):
		return errorJSON(c, http.StatusBadRequest, "message content must not be empty", "EMPTY_MESSAGE")
	case errors.Is(err, coaching.ErrSessionActive):
		return errorJSON(c, http.StatusBadRequest, "session has not ended yet", "SESSION_ACTIVE")
	case errors.Is(err, phase.ErrInvalidBudget):
		return errorJSON(c, http.StatusBadRequest, err.Error(), "INVALID_BUDGET")
	case errors.Is(err, gateway.ErrUpstream):
		s.logger.Error("upstream model failure", zap.Error(err))
		return errorJSON(c, http.StatusBadGateway, "coach response generation failed", "LLM_ERROR")
	default:
		s.logger.Error("unhandled service error", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}

func errorJSON(c echo.Context, status int, detail, code string) error {
	return c.JSON(status, ErrorResponse{Detail: detail, ErrorCode: code})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
