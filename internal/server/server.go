// Package server hosts the MCP endpoint, health checks, metrics and the
// activity stream on one gin engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/ethagent/internal/config"
	"github.com/mbd888/ethagent/internal/health"
	"github.com/mbd888/ethagent/internal/idgen"
	"github.com/mbd888/ethagent/internal/logging"
	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/ratelimit"
	"github.com/mbd888/ethagent/internal/realtime"
	"github.com/mbd888/ethagent/internal/security"
)

// Version is reported by /health.
const Version = "1.0.0"

// MaxRequestSize bounds request bodies (1MB).
const MaxRequestSize = 1 << 20

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.ServerConfig
	mcp          *mcpserver.MCPServer
	hub          *realtime.Hub
	health       *health.Registry
	limiter      *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	drainDelay   time.Duration
	onShutdown   []func() error
	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHub serves the activity stream at /ws and runs the hub with the server.
func WithHub(hub *realtime.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithHealth sets the registry behind /health.
func WithHealth(reg *health.Registry) Option {
	return func(s *Server) {
		s.health = reg
	}
}

// WithRateLimit throttles /mcp.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.limiter = ratelimit.New(cfg)
	}
}

// WithDrainDelay sets how long Shutdown waits before closing the listener.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// OnShutdown registers a cleanup run after the listener has closed, in
// registration order.
func OnShutdown(fn func() error) Option {
	return func(s *Server) {
		s.onShutdown = append(s.onShutdown, fn)
	}
}

// New creates a new server instance
func New(cfg *config.ServerConfig, mcp *mcpserver.MCPServer, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		mcp:        mcp,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.NewRegistry()
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
	s.healthy.Store(true)
	return s
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(requestSizeMiddleware(MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func requestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.RequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		case path == "/metrics" || path == "/health/live" || path == "/health/ready":
			logger.Debug("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	if s.hub != nil {
		s.router.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))
		s.router.GET("/ws/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.hub.Stats())
		})
	}

	path := s.cfg.Path
	if path == "" {
		path = config.DefaultMCPPath
	}
	streamable := mcpserver.NewStreamableHTTPServer(s.mcp, mcpserver.WithEndpointPath(path))

	handlers := []gin.HandlerFunc{}
	if s.limiter != nil {
		handlers = append(handlers, s.limiter.Middleware())
	}
	handlers = append(handlers, gin.WrapH(streamable))
	s.router.Any(path, handlers...)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !ok {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until ctx is done, a signal arrives
// or the listener fails. It then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: streamable HTTP keeps SSE responses open.
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting MCP server",
			"addr", s.cfg.Addr(),
			"path", s.cfg.Path,
			"rpc", s.cfg.RPCURL,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.hub != nil {
		go s.hub.Run(runCtx)
	}

	s.ready.Store(true)
	s.logger.Info("server ready", "url", fmt.Sprintf("http://%s%s", s.cfg.Addr(), s.cfg.Path))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.ready.Store(false)
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	if s.drainDelay > 0 {
		time.Sleep(s.drainDelay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}

	for _, fn := range s.onShutdown {
		if err := fn(); err != nil {
			s.logger.Error("cleanup error", "error", err)
			errs = append(errs, err)
		}
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
