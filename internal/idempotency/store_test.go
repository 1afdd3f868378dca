package idempotency

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/db"
)

func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := db.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if _, err := pool.Exec(context.Background(), "DELETE FROM idempotency_cache"); err != nil {
		t.Fatalf("failed to clean idempotency_cache table: %v", err)
	}

	return pool
}

func TestAcquire_SecondCallerSeesKeyHeld(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	s := New(pool, config.IdempotencyConfig{RetentionHours: 24}, zerolog.Nop())

	ctx := context.Background()
	won, err := s.Acquire(ctx, "msg-1", "CreateWorkItem")
	if err != nil || !won {
		t.Fatalf("expected first acquire to win: won=%v err=%v", won, err)
	}

	won, err = s.Acquire(ctx, "msg-1", "CreateWorkItem")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won {
		t.Fatal("expected second acquire to see the key already held")
	}
}

func TestCompleteThenFind_ReturnsDecodedPayload(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	s := New(pool, config.IdempotencyConfig{RetentionHours: 24}, zerolog.Nop())

	ctx := context.Background()
	if _, err := s.Acquire(ctx, "msg-2", "CreateWorkItem"); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, "msg-2", []byte(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}

	payload, found, err := s.Find(ctx, "msg-2")
	if err != nil || !found {
		t.Fatalf("expected cached result: found=%v err=%v", found, err)
	}
	if string(payload) != `{"ok":true}` {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestFind_MissingKeyIsMiss(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	s := New(pool, config.IdempotencyConfig{RetentionHours: 24}, zerolog.Nop())

	_, found, err := s.Find(context.Background(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected a miss for an unknown message id")
	}
}
