package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/propflow/internal/config"
	deadLetterHTTP "github.com/allisson/propflow/internal/deadletter/http"
	eventHTTP "github.com/allisson/propflow/internal/event/http"
	webhookHTTP "github.com/allisson/propflow/internal/webhook/http"
)

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(string) bool { return false }

func setupTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(nil, "localhost", 0, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server.SetupRouter(
		ctx,
		cfg,
		rejectAllVerifier{},
		eventHTTP.NewEventHandler(nil, logger),
		webhookHTTP.NewWebhookHandler(nil, nil, logger),
		deadLetterHTTP.NewDeadLetterHandler(nil, logger),
		nil,
	)
	require.NotNil(t, server.Handler())
	gin.SetMode(gin.TestMode)
	return server.router
}

func TestSetupRouter_AdminRoutesRequireToken(t *testing.T) {
	router := setupTestRouter(t, &config.Config{AdminTokenHash: "configured"})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/events"},
		{http.MethodGet, "/v1/tenants/t-1/webhooks"},
		{http.MethodGet, "/v1/webhooks/0190a4b2-0000-7000-8000-000000000000"},
		{http.MethodPost, "/v1/webhooks/deliveries/0190a4b2-0000-7000-8000-000000000000/retry"},
		{http.MethodGet, "/v1/dead-letters"},
		{http.MethodPost, "/v1/dead-letters/0190a4b2-0000-7000-8000-000000000000/requeue"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(route.method, route.path, nil)
			req.Header.Set("Authorization", "Bearer wrong")
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestSetupRouter_AdminAPIDisabledWithoutHash(t *testing.T) {
	router := setupTestRouter(t, &config.Config{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/dead-letters", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_CORSPreflight(t *testing.T) {
	router := setupTestRouter(t, &config.Config{
		CORSEnabled:      true,
		CORSAllowOrigins: "https://dashboard.example.com",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StartWithoutRouter(t *testing.T) {
	server := NewServer(nil, "localhost", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Error(t, server.Start(context.Background()))
}
