// Package testutil provides shared helpers for integration tests. Helpers skip
// the calling test when the backing service is not configured, so unit tests
// run without Postgres or Redis.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"schoolride/internal/infra"
)

const (
	dsnEnv   = "SCHOOLRIDE_TEST_DSN"
	redisEnv = "SCHOOLRIDE_TEST_REDIS"
)

// Tables in delete order (children first).
var tables = []string{"rides", "subscriptions", "routes", "driver_location_snapshots", "fare_rates", "schools"}

// NewPool connects to SCHOOLRIDE_TEST_DSN, applies the embedded migrations
// and empties every table. The pool is closed when the test finishes.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping integration test")
	}
	ctx := context.Background()

	pool, err := infra.NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("testutil.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("testutil.NewPool: migrate: %v", err)
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("testutil.NewPool: clear %s: %v", table, err)
		}
	}
	return pool
}

// NewRedis connects to SCHOOLRIDE_TEST_REDIS. The client is closed when the
// test finishes; callers clean up their own keys.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv(redisEnv)
	if addr == "" {
		t.Skip(redisEnv + " not set; skipping integration test")
	}
	client, err := infra.NewRedis(context.Background(), addr)
	if err != nil {
		t.Fatalf("testutil.NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
