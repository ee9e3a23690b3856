package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"github.com/fyrsmithlabs/coachd/internal/phase"
	"github.com/fyrsmithlabs/coachd/internal/reflection"
	"github.com/fyrsmithlabs/coachd/internal/session"
	"github.com/fyrsmithlabs/coachd/internal/store"
)

type fakeService struct {
	startResp   *coaching.StartResponse
	startErr    error
	messageResp *coaching.MessageResponse
	messageErr  error
	endResp     *coaching.EndResponse
	endErr      error
	detail      *coaching.SessionDetail
	getErr      error
	refl        *reflection.Reflection
	reflErr     error

	lastStart   *coaching.StartRequest
	lastContent string
}

func (f *fakeService) Start(_ context.Context, req *coaching.StartRequest) (*coaching.StartResponse, error) {
	f.lastStart = req
	return f.startResp, f.startErr
}

func (f *fakeService) Message(_ context.Context, _ uuid.UUID, content string) (*coaching.MessageResponse, error) {
	f.lastContent = content
	return f.messageResp, f.messageErr
}

func (f *fakeService) End(_ context.Context, _ uuid.UUID) (*coaching.EndResponse, error) {
	return f.endResp, f.endErr
}

func (f *fakeService) Get(_ context.Context, _ uuid.UUID) (*coaching.SessionDetail, error) {
	return f.detail, f.getErr
}

func (f *fakeService) Reflection(_ context.Context, _ uuid.UUID) (*reflection.Reflection, error) {
	return f.refl, f.reflErr
}

func newTestServer(t *testing.T, svc coaching.Service) *Server {
	t.Helper()
	srv, err := NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{})
		assert.Equal(t, "localhost", srv.config.Host)
		assert.Equal(t, 8220, srv.config.Port)
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeService{}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	rec := doJSON(srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleStartSession(t *testing.T) {
	t.Run("creates session", func(t *testing.T) {
		id := uuid.New()
		fs := &fakeService{startResp: &coaching.StartResponse{
			SessionID: id, Phase: phase.Framing, MaxTurns: 12,
			TurnsRemaining: 12, Status: session.StatusActive,
			Content: "What would you like to work on?",
		}}
		srv := newTestServer(t, fs)

		rec := doJSON(srv, http.MethodPost, "/api/v1/sessions",
			map[string]any{"topic": "delegation", "max_turns": 12})

		assert.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, fs.lastStart)
		assert.Equal(t, "delegation", fs.lastStart.Topic)
		assert.Equal(t, 12, fs.lastStart.MaxTurns)

		var resp coaching.StartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.SessionID)
	})

	t.Run("rejects invalid budget", func(t *testing.T) {
		fs := &fakeService{startErr: phase.ErrInvalidBudget}
		srv := newTestServer(t, fs)

		rec := doJSON(srv, http.MethodPost, "/api/v1/sessions", map[string]any{"max_turns": 100})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_BUDGET", decodeError(t, rec).ErrorCode)
	})
}

func TestHandleMessage(t *testing.T) {
	id := uuid.New()
	path := "/api/v1/sessions/" + id.String() + "/messages"

	t.Run("applies turn", func(t *testing.T) {
		fs := &fakeService{messageResp: &coaching.MessageResponse{
			Content: "Tell me more.", Phase: phase.Exploration,
			TurnCount: 2, TurnsRemaining: 10,
		}}
		srv := newTestServer(t, fs)

		rec := doJSON(srv, http.MethodPost, path, MessageRequest{Content: "I overcommit"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "I overcommit", fs.lastContent)
	})

	t.Run("maps service errors", func(t *testing.T) {
		cases := []struct {
			name     string
			err      error
			status   int
			code     string
		}{
			{"not found", store.ErrNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
			{"ended", session.ErrSessionEnded, http.StatusBadRequest, "SESSION_ALREADY_ENDED"},
			{"budget exceeded", session.ErrBudgetExceeded, http.StatusConflict, "BUDGET_EXCEEDED"},
			{"empty message", coaching.ErrEmptyMessage, http.StatusBadRequest, "EMPTY_MESSAGE"},
			{"upstream failure", gateway.ErrUpstream, http.StatusBadGateway, "LLM_ERROR"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				srv := newTestServer(t, &fakeService{messageErr: tc.err})
				rec := doJSON(srv, http.MethodPost, path, MessageRequest{Content: "x"})

				assert.Equal(t, tc.status, rec.Code)
				assert.Equal(t, tc.code, decodeError(t, rec).ErrorCode)
			})
		}
	})

	t.Run("malformed session id is not found", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{})
		rec := doJSON(srv, http.MethodPost, "/api/v1/sessions/not-a-uuid/messages", MessageRequest{Content: "x"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "SESSION_NOT_FOUND", decodeError(t, rec).ErrorCode)
	})
}

func TestHandleEndSession(t *testing.T) {
	id := uuid.New()
	path := "/api/v1/sessions/" + id.String() + "/end"

	t.Run("ends session", func(t *testing.T) {
		fs := &fakeService{endResp: &coaching.EndResponse{
			SessionID: id, Status: session.StatusCompleted,
			Reflection: &reflection.Reflection{SessionID: id, Outcome: reflection.OutcomePartialProgress},
		}}
		srv := newTestServer(t, fs)

		rec := doJSON(srv, http.MethodPost, path, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp coaching.EndResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, session.StatusCompleted, resp.Status)
	})

	t.Run("second end is rejected", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{endErr: session.ErrSessionEnded})
		rec := doJSON(srv, http.MethodPost, path, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "SESSION_ALREADY_ENDED", decodeError(t, rec).ErrorCode)
	})
}

func TestHandleGetReflection(t *testing.T) {
	id := uuid.New()
	path := "/api/v1/sessions/" + id.String() + "/reflection"

	t.Run("returns reflection", func(t *testing.T) {
		fs := &fakeService{refl: &reflection.Reflection{SessionID: id, Outcome: reflection.OutcomeBreakthrough}}
		srv := newTestServer(t, fs)

		rec := doJSON(srv, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp reflection.Reflection
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, reflection.OutcomeBreakthrough, resp.Outcome)
	})

	t.Run("active session is rejected", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{reflErr: coaching.ErrSessionActive})
		rec := doJSON(srv, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "SESSION_ACTIVE", decodeError(t, rec).ErrorCode)
	})

	t.Run("missing reflection is not found", func(t *testing.T) {
		srv := newTestServer(t, &fakeService{reflErr: store.ErrNotFound})
		rec := doJSON(srv, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleGetSession(t *testing.T) {
	id := uuid.New()

	fs := &fakeService{detail: &coaching.SessionDetail{
		Session: &session.Session{ID: id, Topic: "delegation", Status: session.StatusActive},
	}}
	srv := newTestServer(t, fs)

	rec := doJSON(srv, http.MethodGet, "/api/v1/sessions/"+id.String(), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp coaching.SessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	assert.Equal(t, "delegation", resp.Session.Topic)
}
