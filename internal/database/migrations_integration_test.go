//go:build integration

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("scanara"),
		postgres.WithUsername("scanara"),
		postgres.WithPassword("scanara"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	dir := filepath.Join("..", "..", "migrations")
	require.NoError(t, RunMigrations(ctx, pool, dir))
	require.NoError(t, RunMigrations(ctx, pool, dir))

	var applied int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)

	var exists bool
	require.NoError(t, pool.QueryRow(ctx, "SELECT to_regclass('documents') IS NOT NULL").Scan(&exists))
	assert.True(t, exists)
}
