package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scanara-ai/scanara-backend/internal/config"
	"github.com/scanara-ai/scanara-backend/internal/docstore"
)

// OpenDocstore returns the document store selected by cfg and a function
// releasing it. A postgres store that cannot be reached is replaced by
// docstore.Unavailable so the API still starts and reports the problem on
// every data call.
func OpenDocstore(ctx context.Context, cfg config.DatabaseConfig) (docstore.Store, func(), error) {
	if cfg.Driver == config.DocstoreMemory {
		slog.Warn("using in-memory document store, data is lost on restart")
		return docstore.NewMemoryStore(), func() {}, nil
	}

	if cfg.URL == "" {
		slog.Error("DATABASE_URL is not set, data access will fail")
		return docstore.Unavailable{Reason: "DATABASE_URL is not set"}, func() {}, nil
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		// the pgx error names the host and user, keep it out of responses
		slog.Error("database unavailable", "error", err)
		return docstore.Unavailable{Reason: "database connection failed"}, func() {}, nil
	}

	if err := RunMigrations(ctx, pool, cfg.MigrationsPath); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return docstore.NewPostgresStore(pool), pool.Close, nil
}
