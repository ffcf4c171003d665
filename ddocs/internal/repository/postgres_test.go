package repository

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fileverse/ddocs-stack/ddocs/migrations"
)

// setupTestDatabase starts one PostgreSQL container for the whole contract
// run and truncates between subtests.
func setupTestDatabase(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("ddocs_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := migrations.Up(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return connStr, func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
}

func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	connStr, cleanup := setupTestDatabase(t)
	defer cleanup()

	runRepositoryContract(t, func(t *testing.T, opts Options) Repository {
		ctx := context.Background()
		repo, err := NewPostgresRepository(ctx, connStr, 10, opts)
		if err != nil {
			t.Fatalf("Failed to create repository: %v", err)
		}
		if _, err := repo.pool.Exec(ctx, `TRUNCATE events, documents, folders, api_keys`); err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}
