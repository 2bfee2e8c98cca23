// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 520520

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates every table.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := migrations.Down(ctx, pool); err != nil {
		return fmt.Errorf("apply down migrations: %w", err)
	}
	if err := migrations.Up(ctx, pool); err != nil {
		return fmt.Errorf("apply up migrations: %w", err)
	}
	return nil
}

// NewTestPool connects to TEST_DATABASE_URL, serialises access, resets the
// schema and registers cleanup. Skips when the variable is unset.
func NewTestPool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := RequireEnv(t, "TEST_DATABASE_URL")
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		pool.Close()
		t.Fatalf("lock: %v", err)
	}
	if err := ResetSchema(ctx, pool); err != nil {
		_ = unlock()
		pool.Close()
		t.Fatalf("reset schema: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
		pool.Close()
	})
	return pool
}

// NewTestRedis connects to TEST_REDIS_URL and flushes it. Skips when unset.
func NewTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	url := RequireEnv(t, "TEST_REDIS_URL")
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	if err := FlushRedis(context.Background(), client); err != nil {
		client.Close()
		t.Fatalf("flush redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestAccount creates an account with sensible defaults.
func NewTestAccount(t testing.TB, paidQuota int) *model.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Account{
		ID:           UniqueID("acct"),
		Username:     fmt.Sprintf("reader_%d", seq.Add(1)),
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		PaidQuota:    paidQuota,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAttempt creates an uncharged attempt for identity and account.
func NewTestAttempt(t testing.TB, identity, accountID string) *model.GenerationAttempt {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.GenerationAttempt{
		ID:        UniqueID("chg"),
		AccountID: accountID,
		Identity:  identity,
		UsageDate: model.UsageDay(now, time.UTC),
		Status:    model.AttemptCharged,
		Subject:   "活着",
		CreatedAt: now,
		UpdatedAt: now,
	}
}
