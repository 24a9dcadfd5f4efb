package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scanara-ai/scanara-backend/internal/api"
	"github.com/scanara-ai/scanara-backend/internal/apps"
	"github.com/scanara-ai/scanara-backend/internal/audit"
	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/cache"
	"github.com/scanara-ai/scanara-backend/internal/config"
	"github.com/scanara-ai/scanara-backend/internal/database"
	"github.com/scanara-ai/scanara-backend/internal/logging"
	"github.com/scanara-ai/scanara-backend/internal/metrics"
	"github.com/scanara-ai/scanara-backend/internal/queue"
	"github.com/scanara-ai/scanara-backend/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Env)

	ctx := context.Background()

	store, closeStore, err := database.OpenDocstore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Redis connection (optional)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable", "error", err)
		}
		defer rdb.Close()
	}

	var connCache cache.Cache
	if rdb != nil {
		connCache = cache.NewRedisCache(rdb, "scanara:")
	} else {
		connCache = cache.NewLocalCache(1024, cfg.Server.ConnectionCacheTTL)
	}

	verifier, err := auth.NewVerifier(cfg.Auth, cfg.Env)
	if err != nil {
		slog.Error("failed to configure token verification", "error", err)
		os.Exit(1)
	}

	registry := metrics.NewRegistry()

	appSvc := apps.NewService(store, connCache, cfg.Server.ConnectionCacheTTL)
	auditSvc := audit.NewService(store, appSvc)
	engine := audit.NewEngine(audit.NewCannedAnalyzer(cfg.Audit.Delay), auditSvc, metrics.NewAudit(registry))

	var (
		dispatcher audit.Dispatcher
		runner     *audit.Runner
		qclient    *queue.Client
	)
	switch cfg.Audit.Dispatch {
	case config.DispatchQueue:
		qclient = queue.NewClient(cfg.Redis)
		defer qclient.Close()
		dispatcher = qclient
	default:
		runner = audit.NewRunner(engine)
		dispatcher = runner
	}
	slog.Info("audit dispatch configured", "mode", cfg.Audit.Dispatch, "delay", cfg.Audit.Delay)

	router := api.NewRouter(cfg, api.Deps{
		Store:      store,
		Redis:      rdb,
		Verifier:   verifier,
		Users:      users.NewService(store),
		Apps:       appSvc,
		Audits:     auditSvc,
		Dispatcher: dispatcher,
		Registry:   registry,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if runner != nil {
		if err := runner.Shutdown(shutdownCtx); err != nil {
			slog.Error("audit runs did not finish", "error", err)
		}
	}
	slog.Info("server stopped")
}
