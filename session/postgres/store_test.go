package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/session/postgres"
	"github.com/MrEthical07/authcore/session/sessiontest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgresStoreConformance(t *testing.T) {
	dsn := os.Getenv("AUTHCORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTHCORE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sessiontest.Run(t, func(t *testing.T) session.Store {
		if _, err := pool.Exec(context.Background(), `TRUNCATE device_sessions`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return postgres.New(pool)
	})
}

func TestMigrateRejectsNilPool(t *testing.T) {
	if err := postgres.Migrate(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
