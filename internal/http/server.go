// Package http provides the HTTP server, router assembly and shared middleware.
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

	"github.com/allisson/autoapi/internal/config"
	crudHTTP "github.com/allisson/autoapi/internal/crud/http"
	"github.com/allisson/autoapi/internal/crud/http/dto"
	"github.com/allisson/autoapi/internal/entity"
	"github.com/allisson/autoapi/internal/metrics"
	sessionHTTP "github.com/allisson/autoapi/internal/session/http"
	sessionUseCase "github.com/allisson/autoapi/internal/session/usecase"
)

// Server represents the HTTP server.
type Server struct {
	server *http.Server
	router *gin.Engine
	db     *sql.DB
	logger *slog.Logger
}

// NewServer creates a new HTTP server. The database handle is only used by
// the readiness probe and may be nil when no SQL backend is configured.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
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

// SetupRouter assembles the Gin engine: shared middleware, probe endpoints,
// the generated CRUD routes and the session introspection route. Must be
// called before Start.
func (s *Server) SetupRouter(
	cfg *config.Config,
	registry *entity.Registry,
	crudHandler *crudHTTP.Handler,
	sessions sessionUseCase.SessionUseCase,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	var loginRateLimit gin.HandlerFunc
	if cfg.RateLimitLoginEnabled {
		loginRateLimit = sessionHTTP.LoginRateLimitMiddleware(
			cfg.RateLimitLoginRequestsPerSec,
			cfg.RateLimitLoginBurst,
			s.logger,
		)
	}
	crudHTTP.RegisterRoutes(router, registry, crudHandler, loginRateLimit)

	router.GET(
		"/v1/session",
		sessionHTTP.AuthenticationMiddleware(sessions, s.logger),
		s.sessionHandler,
	)

	s.router = router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can take traffic. The database
// component is "error" when no handle is configured or the ping fails.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}
	status := http.StatusOK
	overall := "ready"

	if s.db == nil {
		components["database"] = "error"
		status = http.StatusServiceUnavailable
		overall = "not_ready"
	} else if err := s.db.PingContext(c.Request.Context()); err != nil {
		s.logger.Warn("readiness database ping failed", slog.String("error", err.Error()))
		components["database"] = "error"
		status = http.StatusServiceUnavailable
		overall = "not_ready"
	}

	c.JSON(status, gin.H{"status": overall, "components": components})
}

// sessionHandler returns the subject of the caller's session. The
// authentication middleware has already validated the token.
func (s *Server) sessionHandler(c *gin.Context) {
	subject, ok := sessionHTTP.GetSubject(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, dto.SessionResponse{Subject: subject})
}
