// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/autoapi/internal/cache"
	"github.com/allisson/autoapi/internal/config"
	crudHTTP "github.com/allisson/autoapi/internal/crud/http"
	"github.com/allisson/autoapi/internal/database"
	"github.com/allisson/autoapi/internal/entity"
	"github.com/allisson/autoapi/internal/http"
	"github.com/allisson/autoapi/internal/limiter"
	"github.com/allisson/autoapi/internal/metrics"
	"github.com/allisson/autoapi/internal/pipeline"
	sessionService "github.com/allisson/autoapi/internal/session/service"
	sessionStore "github.com/allisson/autoapi/internal/session/store"
	sessionUseCase "github.com/allisson/autoapi/internal/session/usecase"
	"github.com/allisson/autoapi/internal/storage/repository"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider

	// Core components
	registry     *entity.Registry
	resultCache  *cache.Cache
	limiter      *limiter.Limiter
	sessionStore *sessionStore.MemoryStore
	sessions     sessionUseCase.SessionUseCase
	storage      pipeline.Storage
	pipeline     pipeline.OperationPipeline

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	metricsProviderInit sync.Once
	registryInit        sync.Once
	cacheInit           sync.Once
	limiterInit         sync.Once
	sessionStoreInit    sync.Once
	sessionsInit        sync.Once
	storageInit         sync.Once
	pipelineInit        sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			Driver:             c.config.DBDriver,
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		c.db = db
	})
	if err, exists := c.initErrors["db"]; exists {
		return nil, err
	}
	return c.db, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if err, exists := c.initErrors["metricsProvider"]; exists {
		return nil, err
	}
	return c.metricsProvider, nil
}

// Registry returns the entity-type registry loaded from the definitions file.
func (c *Container) Registry() (*entity.Registry, error) {
	c.registryInit.Do(func() {
		registry, err := entity.LoadRegistry(c.config.EntitiesConfigPath)
		if err != nil {
			c.initErrors["registry"] = fmt.Errorf("failed to load entity definitions: %w", err)
			return
		}
		c.registry = registry
	})
	if err, exists := c.initErrors["registry"]; exists {
		return nil, err
	}
	return c.registry, nil
}

// Cache returns the shared result cache.
func (c *Container) Cache() *cache.Cache {
	c.cacheInit.Do(func() {
		c.resultCache = cache.New()
	})
	return c.resultCache
}

// Limiter returns the per-entity concurrency limiter.
func (c *Container) Limiter() *limiter.Limiter {
	c.limiterInit.Do(func() {
		c.limiter = limiter.New(
			c.config.LimiterDefaultMaxConcurrent,
			c.config.LimiterAcquireTimeout,
		)
	})
	return c.limiter
}

// SessionStore returns the in-memory session store with its background sweep.
func (c *Container) SessionStore() *sessionStore.MemoryStore {
	c.sessionStoreInit.Do(func() {
		c.sessionStore = sessionStore.NewMemoryStore(c.config.SessionSweepInterval)
	})
	return c.sessionStore
}

// Sessions returns the session use case.
func (c *Container) Sessions() sessionUseCase.SessionUseCase {
	c.sessionsInit.Do(func() {
		c.sessions = sessionUseCase.NewSessionUseCase(
			c.SessionStore(),
			sessionService.NewTokenService(),
			c.config.SessionTokenTTL,
		)
	})
	return c.sessions
}

// Storage returns the record storage backend for the configured driver.
func (c *Container) Storage() (pipeline.Storage, error) {
	c.storageInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["storage"] = fmt.Errorf("failed to get database for storage: %w", err)
			return
		}

		switch c.config.DBDriver {
		case "mysql":
			c.storage = repository.NewMySQLStore(db)
		case "postgres":
			c.storage = repository.NewPostgreSQLStore(db)
		default:
			c.initErrors["storage"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if err, exists := c.initErrors["storage"]; exists {
		return nil, err
	}
	return c.storage, nil
}

// Pipeline returns the operation pipeline, wrapped with metrics when enabled.
func (c *Container) Pipeline() (pipeline.OperationPipeline, error) {
	c.pipelineInit.Do(func() {
		registry, err := c.Registry()
		if err != nil {
			c.initErrors["pipeline"] = err
			return
		}

		storage, err := c.Storage()
		if err != nil {
			c.initErrors["pipeline"] = err
			return
		}

		p := pipeline.New(
			registry,
			c.Cache(),
			c.Limiter(),
			c.Sessions(),
			storage,
			sessionService.NewPasswordService(),
			c.config.CacheDefaultTTL,
			c.Logger(),
		)

		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["pipeline"] = err
			return
		}
		if provider != nil {
			businessMetrics, err := metrics.NewBusinessMetrics(
				provider.MeterProvider(), c.config.MetricsNamespace)
			if err != nil {
				c.initErrors["pipeline"] = fmt.Errorf("failed to create business metrics: %w", err)
				return
			}
			p = pipeline.NewWithMetrics(p, businessMetrics)
		}

		c.pipeline = p
	})
	if err, exists := c.initErrors["pipeline"]; exists {
		return nil, err
	}
	return c.pipeline, nil
}

// HTTPServer returns the HTTP server instance with its router assembled.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		registry, err := c.Registry()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}

		p, err := c.Pipeline()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}

		db, err := c.DB()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}

		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}

		logger := c.Logger()
		server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
		server.SetupRouter(
			c.config,
			registry,
			crudHTTP.NewHandler(p, logger),
			c.Sessions(),
			provider,
		)

		c.httpServer = server
	})
	if err, exists := c.initErrors["httpServer"]; exists {
		return nil, err
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		if provider == nil {
			return
		}

		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err, exists := c.initErrors["metricsServer"]; exists {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.sessionStore != nil {
		if err := c.sessionStore.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("session store close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
