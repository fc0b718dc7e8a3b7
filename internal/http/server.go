// Package http provides the API server, its router, and shared middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authHTTP "github.com/allisson/propflow/internal/auth/http"
	authService "github.com/allisson/propflow/internal/auth/service"
	"github.com/allisson/propflow/internal/config"
	deadLetterHTTP "github.com/allisson/propflow/internal/deadletter/http"
	eventHTTP "github.com/allisson/propflow/internal/event/http"
	"github.com/allisson/propflow/internal/metrics"
	webhookHTTP "github.com/allisson/propflow/internal/webhook/http"
)

// Server is the API HTTP server.
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new Server. Call SetupRouter before Start.
func NewServer(db *sql.DB, host string, port int, logger *slog.Logger) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin engine with health probes and the admin /v1 API.
//
// The /v1 group is only mounted when an admin token hash is configured. ctx bounds
// background goroutines owned by middleware.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	tokenVerifier authService.TokenVerifier,
	eventHandler *eventHTTP.EventHandler,
	webhookHandler *webhookHTTP.WebhookHandler,
	deadLetterHandler *deadLetterHTTP.DeadLetterHandler,
	metricsProvider *metrics.Provider,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := newCORSMiddleware(cfg, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if cfg.AdminTokenHash == "" {
		s.logger.Warn("ADMIN_TOKEN_HASH not set - admin API disabled")
		s.router = router
		return
	}

	v1 := router.Group("/v1")
	v1.Use(authHTTP.AdminAuthMiddleware(tokenVerifier, s.logger))
	if cfg.RateLimitEnabled {
		v1.Use(authHTTP.RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}

	registerRoutes(v1, eventHandler, webhookHandler, deadLetterHandler)
	s.router = router
}

func registerRoutes(
	v1 *gin.RouterGroup,
	eventHandler *eventHTTP.EventHandler,
	webhookHandler *webhookHTTP.WebhookHandler,
	deadLetterHandler *deadLetterHTTP.DeadLetterHandler,
) {
	v1.POST("/events", eventHandler.PublishHandler)

	tenants := v1.Group("/tenants/:tenantId/webhooks")
	{
		tenants.POST("", webhookHandler.CreateHandler)
		tenants.GET("", webhookHandler.ListHandler)
	}

	webhooks := v1.Group("/webhooks")
	{
		webhooks.GET("/:id", webhookHandler.GetHandler)
		webhooks.PUT("/:id", webhookHandler.UpdateHandler)
		webhooks.DELETE("/:id", webhookHandler.DeleteHandler)
		webhooks.POST("/:id/rotate-secret", webhookHandler.RotateSecretHandler)
		webhooks.GET("/:id/deliveries", webhookHandler.ListDeliveriesHandler)
		webhooks.POST("/deliveries/:id/retry", webhookHandler.RetryDeliveryHandler)
	}

	deadLetters := v1.Group("/dead-letters")
	{
		deadLetters.GET("", deadLetterHandler.ListHandler)
		deadLetters.POST("/:id/requeue", deadLetterHandler.RequeueHandler)
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "ok"
	if s.db == nil || s.db.PingContext(ctx) != nil {
		database = "error"
	}

	if database != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": database},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": database},
	})
}
