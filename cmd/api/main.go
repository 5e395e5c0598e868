// Package main is the entrypoint for the Curso Access Hub API.
//
// The service owns course access decisions for the delivery platform: it
// evaluates whether a learner may open a lesson, runs the request/approve
// workflow behind that decision, rolls lesson completions up into module
// and course percentages, and chains an automatic access request for the
// next lesson after every completion.
//
// The layering follows Clean Architecture and DDD:
// - Domain: pure business logic without external dependencies
// - Application: use case orchestration (Commands/Queries/Event Handlers)
// - Infrastructure: repositories, cache, event bus
// - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/curso-hub/curso-access-hub/config"

	// Application layer
	"github.com/curso-hub/curso-access-hub/internal/application/command"
	"github.com/curso-hub/curso-access-hub/internal/application/eventhandler"
	"github.com/curso-hub/curso-access-hub/internal/application/query"

	// Domain layer
	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/curso-hub/curso-access-hub/internal/infrastructure/messaging"
	"github.com/curso-hub/curso-access-hub/internal/infrastructure/persistence/postgres"
	"github.com/curso-hub/curso-access-hub/internal/infrastructure/persistence/redis"
	"github.com/curso-hub/curso-access-hub/internal/infrastructure/security"

	// Interface layer
	httpserver "github.com/curso-hub/curso-access-hub/internal/interface/http"

	// Packages
	"github.com/curso-hub/curso-access-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     parseLogLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})

	slogger.Info("starting Curso Access Hub",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database...")
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	slogger.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		slogger.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		status, err := migrator.Status(ctx)
		if err != nil {
			slogger.Warn("failed to get migration status", "error", err)
		} else {
			appliedCount := 0
			for _, m := range status {
				if m.IsApplied {
					appliedCount++
				}
			}
			slogger.Info("migrations completed", "applied", appliedCount, "total", len(status))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache

	if !cfg.Redis.Disabled {
		slogger.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			slogger.Warn("failed to connect to Redis, catalog caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. MEDIA ENCRYPTION
	// ─────────────────────────────────────────────────────────────────────────
	var mediaCipher *security.MediaCipher
	if cfg.Security.MediaEncryptionKey != "" {
		mediaCipher, err = security.NewMediaCipher(cfg.Security.MediaEncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid media encryption key: %w", err)
		}
		slogger.Info("media URL encryption enabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing repositories...")

	var catalogReader catalog.Reader
	if mediaCipher != nil {
		catalogReader = postgres.NewCatalogRepository(dbConn, mediaCipher)
	} else {
		catalogReader = postgres.NewCatalogRepository(dbConn, nil)
	}
	if redisCache != nil {
		catalogReader = redis.NewCatalogCache(catalogReader, redisCache, appLog)
	}

	progressRepo := postgres.NewProgressRepository(dbConn)
	grantRepo := postgres.NewGrantRepository(dbConn)
	requestRepo := postgres.NewRequestRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = slogger
	eventBusConfig.WorkerPoolSize = cfg.AutoChain.WorkerPoolSize
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		slogger.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing application layer...")

	policy := authorization.NewPolicy()

	recordCompletionCmd := command.NewRecordCompletionHandler(catalogReader, progressRepo, eventBus)
	submitRequestCmd := command.NewSubmitRequestHandler(catalogReader, requestRepo, policy, eventBus)
	approveRequestCmd := command.NewApproveRequestHandler(catalogReader, requestRepo, eventBus)
	rejectRequestCmd := command.NewRejectRequestHandler(catalogReader, requestRepo, eventBus)

	categoryGateQuery := query.NewCategoryGateHandler(catalogReader, policy)
	evaluateAccessQuery := query.NewEvaluateAccessHandler(catalogReader, progressRepo, grantRepo)
	courseProgressQuery := query.NewGetCourseProgressHandler(catalogReader, progressRepo)
	pendingRequestsQuery := query.NewListPendingRequestsHandler(catalogReader, requestRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.AutoChain.Enabled {
		slogger.Info("registering auto-chain handler...")
		autoChain := eventhandler.NewOnLessonCompletedHandler(
			catalogReader,
			submitRequestCmd,
			appLog,
			eventhandler.AutoChainConfig{SubmitTimeout: cfg.AutoChain.SubmitTimeout},
		)
		if err := eventBus.Subscribe(shared.EventLessonCompleted, autoChain.Handle); err != nil {
			return fmt.Errorf("failed to subscribe auto-chain handler: %w", err)
		}
	} else {
		slogger.Info("auto-chain disabled by configuration")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	httpDeps := httpserver.Dependencies{
		RecordCompletionHandler:    recordCompletionCmd,
		SubmitRequestHandler:       submitRequestCmd,
		ApproveRequestHandler:      approveRequestCmd,
		RejectRequestHandler:       rejectRequestCmd,
		CategoryGateHandler:        categoryGateQuery,
		EvaluateAccessHandler:      evaluateAccessQuery,
		GetCourseProgressHandler:   courseProgressQuery,
		ListPendingRequestsHandler: pendingRequestsQuery,
		Logger:                     appLog,
		HealthChecker:              &healthChecker{db: dbConn, cache: redisCache},
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. START SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)

	go func() {
		slogger.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("Curso Access Hub is running", "http_address", httpServer.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slogger.Error("service error", "error", err)
		return err
	case <-ctx.Done():
		slogger.Info("context cancelled")
	}

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	// Event bus, Redis and database close via defers.
	slogger.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// connectDatabase opens the pool from DATABASE_URL when set, or from the
// component settings otherwise.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return conn.WithQueryTimeout(cfg.Database.QueryTimeout), nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.QueryTimeout = cfg.Database.QueryTimeout
	return postgres.NewConnection(ctx, pgCfg)
}

// setupSlog configures the process-level structured logger.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// parseLogLevel maps the configured level name to a logger level.
func parseLogLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// healthChecker reports readiness from the backing stores. The database is
// required; Redis only degrades the message because the catalog falls back
// to PostgreSQL when the cache is gone.
type healthChecker struct {
	db    *postgres.Connection
	cache *redis.Cache
}

func (h *healthChecker) Check(ctx context.Context) httpserver.HealthStatus {
	if err := h.db.Ping(ctx); err != nil {
		return httpserver.HealthStatus{
			Healthy: false,
			Ready:   false,
			Message: fmt.Sprintf("database unreachable: %v", err),
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			return httpserver.HealthStatus{
				Healthy: true,
				Ready:   true,
				Message: "cache unreachable, serving catalog from database",
			}
		}
	}

	return httpserver.HealthStatus{Healthy: true, Ready: true}
}
