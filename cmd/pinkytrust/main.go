package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/edgararthur/pinkytrust-sub003/internal/app"
	"github.com/edgararthur/pinkytrust-sub003/internal/audit"
	audithttp "github.com/edgararthur/pinkytrust-sub003/internal/audit/http"
	"github.com/edgararthur/pinkytrust-sub003/internal/observability"
	"github.com/edgararthur/pinkytrust-sub003/internal/platform/cache"
	"github.com/edgararthur/pinkytrust-sub003/internal/platform/db"
	"github.com/edgararthur/pinkytrust-sub003/internal/rbac"
	"github.com/edgararthur/pinkytrust-sub003/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	readiness := map[string]app.ReadinessCheck{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	var repo audit.Repository
	switch cfg.AuditBackend {
	case app.AuditBackendPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		pgRepo := audit.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			logger.Error("ensure activity log schema", slog.Any("error", err))
			os.Exit(1)
		}
		readiness["postgres"] = pool.Ping
		repo = pgRepo
	default:
		logger.Warn("activity log kept in memory; entries are lost on restart")
		repo = audit.NewMemoryRepository()
	}

	store := audit.NewStore(repo,
		audit.WithCache(audit.NewRedisStatsCache(redisClient, cfg.AuditStatsCacheTTL)),
		audit.WithLogger(logger),
		audit.WithObserver(metrics),
	)

	registry := rbac.MustDefault()
	guard := rbac.Middleware{Evaluator: rbac.NewEvaluator(registry.Catalog()), Logger: logger, Observer: metrics}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	var enqueuer audithttp.Enqueuer
	if cfg.AuditAsync {
		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		enqueuer = client
	}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Metrics:      metrics,
		Resolver:     rbac.NewSessionResolver(redisClient, cfg.SessionCookie),
		RBACHandler:  rbac.NewHandler(logger, registry, guard),
		AuditHandler: audithttp.NewHandler(logger, store, guard, enqueuer),
		JobHandler:   jobs.NewHandler(inspector, logger),
		Readiness:    readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr),
			slog.String("audit_backend", cfg.AuditBackend), slog.Bool("audit_async", cfg.AuditAsync))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
