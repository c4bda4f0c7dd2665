package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ethagent/internal/config"
	"github.com/mbd888/ethagent/internal/health"
	"github.com/mbd888/ethagent/internal/ratelimit"
	"github.com/mbd888/ethagent/internal/realtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:      "127.0.0.1",
		Port:      "0",
		Path:      "/mcp",
		LogLevel:  "error",
		LogFormat: "text",
	}
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	mcp := mcpserver.NewMCPServer("ethagent-test", "0.0.1", mcpserver.WithToolCapabilities(true))
	opts = append([]Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithDrainDelay(0),
	}, opts...)
	return New(testConfig(), mcp, opts...)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0.0.1"}}}`

func postMCP(s *Server, body, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if session != "" {
		req.Header.Set(ratelimit.SessionHeader, session)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth_AllHealthy(t *testing.T) {
	reg := health.NewRegistry()
	reg.Register("ethereum", health.Ping("ethereum", func(context.Context) error { return nil }))
	s := newTestServer(t, WithHealth(reg))

	w := get(t, s, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "ethereum", resp.Checks[0].Name)
	assert.True(t, resp.Checks[0].Healthy)
}

func TestHealth_Degraded(t *testing.T) {
	reg := health.NewRegistry()
	reg.Register("ethereum", health.Ping("ethereum", func(context.Context) error {
		return errors.New("connection refused")
	}))
	s := newTestServer(t, WithHealth(reg))

	w := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestLivenessAndReadiness(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(t, s, "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/health/ready").Code)

	s.ready.Store(true)
	assert.Equal(t, http.StatusOK, get(t, s, "/health/ready").Code)

	s.healthy.Store(false)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/health/live").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	get(t, s, "/health/live")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := get(t, s, "/health/live")
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 32)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/health/live")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.Router().GET("/panic", func(*gin.Context) { panic("boom") })

	w := get(t, s, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestMCPEndpoint_Initialize(t *testing.T) {
	s := newTestServer(t)

	w := postMCP(s, initializeBody, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "ethagent-test")
	assert.NotEmpty(t, w.Header().Get(ratelimit.SessionHeader))
}

func TestMCPEndpoint_RateLimited(t *testing.T) {
	s := newTestServer(t, WithRateLimit(ratelimit.Config{RequestsPerMinute: 1, BurstSize: 1, IdleTTL: time.Minute}))
	t.Cleanup(s.limiter.Stop)

	assert.Equal(t, http.StatusOK, postMCP(s, initializeBody, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, postMCP(s, initializeBody, "").Code)

	// Health stays reachable while /mcp is throttled.
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
}

func TestRequestSizeLimit(t *testing.T) {
	s := newTestServer(t)
	var got error
	s.Router().POST("/echo", func(c *gin.Context) {
		_, got = c.GetRawData()
		c.Status(http.StatusOK)
	})

	big := strings.Repeat("a", MaxRequestSize+1)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(big)))
	assert.Error(t, got)
}

func TestWebSocketRoutes(t *testing.T) {
	without := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, without, "/ws/stats").Code)

	hub := realtime.NewHub(slog.New(slog.DiscardHandler))
	s := newTestServer(t, WithHub(hub))

	w := get(t, s, "/ws/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "connectedClients")

	// A plain GET without upgrade headers is rejected by the upgrader.
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/ws").Code)
}

func TestRun_ContextCancel(t *testing.T) {
	var cleaned bool
	s := newTestServer(t, OnShutdown(func() error {
		cleaned = true
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.ready.Load, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, cleaned)
	assert.False(t, s.ready.Load())
}

func TestShutdown_JoinsCleanupErrors(t *testing.T) {
	s := newTestServer(t,
		OnShutdown(func() error { return errors.New("close store") }),
		OnShutdown(func() error { return nil }),
	)
	err := s.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close store")
}
