package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/scanara-ai/scanara-backend/internal/apps"
	"github.com/scanara-ai/scanara-backend/internal/audit"
	"github.com/scanara-ai/scanara-backend/internal/config"
	"github.com/scanara-ai/scanara-backend/internal/database"
	"github.com/scanara-ai/scanara-backend/internal/logging"
	"github.com/scanara-ai/scanara-backend/internal/metrics"
	"github.com/scanara-ai/scanara-backend/internal/queue"
	"github.com/scanara-ai/scanara-backend/internal/queue/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Env)

	if cfg.Redis.Addr == "" {
		slog.Error("REDIS_ADDR is required to run the audit worker")
		os.Exit(1)
	}
	if cfg.Database.Driver == config.DocstoreMemory {
		slog.Error("the audit worker needs a shared document store", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	store, closeStore, err := database.OpenDocstore(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	appSvc := apps.NewService(store, nil, 0)
	auditSvc := audit.NewService(store, appSvc)
	reg := metrics.NewRegistry()
	engine := audit.NewEngine(audit.NewCannedAnalyzer(cfg.Audit.Delay), auditSvc, metrics.NewAudit(reg))

	metricsSrv := metrics.NewServer(cfg.Audit.MetricsAddr, reg)
	go func() {
		slog.Info("serving worker metrics", "addr", cfg.Audit.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(ctx)
	}()

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeAuditRun, asynq.HandlerFunc(workers.NewAuditWorker(engine).ProcessTask))

	srv := queue.NewServer(queue.RedisOpt(cfg.Redis), cfg.Audit.Concurrency)

	slog.Info("starting worker", "concurrency", cfg.Audit.Concurrency, "queue", queue.QueueAudits)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
