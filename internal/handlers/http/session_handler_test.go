package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coedit/internal/core/domain"
	"coedit/internal/core/ports"
	"coedit/internal/core/services"
	"coedit/internal/infrastructure/middleware"
	"coedit/internal/infrastructure/monitoring"
	"coedit/pkg/circuitbreaker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBackend fakes the external collaborator and the media plumbing so the
// control API can be exercised end to end in process.
type stubBackend struct{}

func (stubBackend) List(ctx context.Context) ([]domain.Document, error) {
	return []domain.Document{{ID: "doc-1", Title: "notes"}}, nil
}

func (stubBackend) Get(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	return &domain.Document{ID: id, Title: "notes", Content: "body"}, nil
}

func (stubBackend) Create(ctx context.Context, title, content string) (*domain.Document, error) {
	return &domain.Document{ID: "doc-new", Title: title, Content: content}, nil
}

func (stubBackend) Save(ctx context.Context, id domain.DocumentID, content string) error {
	return nil
}

func (stubBackend) Delete(ctx context.Context, id domain.DocumentID) error { return nil }

func (stubBackend) Login(ctx context.Context, email, password string) (string, error) {
	return "token-1", nil
}

func (stubBackend) Register(ctx context.Context, username, email, password string) (string, error) {
	return "token-1", nil
}

func (stubBackend) SetToken(string) {}
func (stubBackend) ClearToken()     {}

type stubChannel struct{}

func (stubChannel) Send(event string, payload interface{}) error { return nil }
func (stubChannel) On(event string, handler ports.EventHandler)  {}
func (stubChannel) Close() error                                 { return nil }

type stubStream struct{}

func (stubStream) ID() string { return "local" }
func (stubStream) Stop()      {}

type stubMedia struct{}

func (stubMedia) Acquire(ctx context.Context) (domain.MediaStream, error) {
	return stubStream{}, nil
}

type stubConnector struct{}

func (stubConnector) Begin(ctx context.Context, self domain.PeerID, local domain.MediaStream, onRemoteStream ports.RemoteStreamHandler) error {
	return nil
}
func (stubConnector) Connect(ctx context.Context, peer domain.PeerID) error { return nil }
func (stubConnector) End() error                                            { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zap.NewNop().Sugar()
	backend := stubBackend{}
	collector := monitoring.NopCollector{}

	docs := services.NewDocumentSyncSession(stubChannel{}, backend, circuitbreaker.New(circuitbreaker.DefaultConfig()), collector, log)
	peers := services.NewPeerConnectionManager(collector, log)
	call := services.NewCallSignalingSession(stubChannel{}, stubMedia{}, stubConnector{}, peers, collector, log)
	coordinator := services.NewSessionCoordinator(backend, backend, backend, docs, call, log)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	handler := NewSessionHandler(coordinator, monitoring.NewHealthChecker())
	handler.SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router *gin.Engine) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "user@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestLoginEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "user@example.com",
		"password": "secret123",
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", gin.H{
		"email":    "nope",
		"password": "secret123",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectDocumentRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents/select", gin.H{
		"document_id": "doc-1",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSelectDocumentReturnsSnapshot(t *testing.T) {
	router := newTestRouter(t)
	login(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/documents/select", gin.H{
		"document_id": "doc-1",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap services.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.True(t, snap.Authenticated)
	require.NotNil(t, snap.Document)
	assert.Equal(t, domain.DocumentID("doc-1"), snap.Document.ID)
}

func TestEditWithoutRoomConflicts(t *testing.T) {
	router := newTestRouter(t)
	login(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/session/edit", gin.H{
		"content": "text",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCallJoinAndLeave(t *testing.T) {
	router := newTestRouter(t)
	login(t, router)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/v1/documents/select", gin.H{"document_id": "doc-1"}).Code)

	w := doJSON(t, router, http.MethodPost, "/api/v1/call/join", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap services.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "announced", snap.CallState)

	w = doJSON(t, router, http.MethodPost, "/api/v1/call/leave", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "idle", snap.CallState)
}

func TestCallJoinWithoutDocumentConflicts(t *testing.T) {
	router := newTestRouter(t)
	login(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/call/join", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListDocuments(t *testing.T) {
	router := newTestRouter(t)
	login(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/v1/documents", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doc-1")
}

func TestHealthzReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	backend := stubBackend{}
	collector := monitoring.NopCollector{}

	docs := services.NewDocumentSyncSession(stubChannel{}, backend, circuitbreaker.New(circuitbreaker.DefaultConfig()), collector, log)
	peers := services.NewPeerConnectionManager(collector, log)
	call := services.NewCallSignalingSession(stubChannel{}, stubMedia{}, stubConnector{}, peers, collector, log)
	coordinator := services.NewSessionCoordinator(backend, backend, backend, docs, call, log)

	health := monitoring.NewHealthChecker()
	health.AddCheck("relay", time.Second, func(ctx context.Context) error {
		return context.DeadlineExceeded
	})

	router := gin.New()
	NewSessionHandler(coordinator, health).SetupRoutes(router)

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
	assert.Contains(t, rec.Body.String(), `"call_state":"idle"`)
}
