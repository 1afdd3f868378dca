package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/db"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
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

	for _, table := range []string{"work_items", "projects"} {
		if _, err := pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean %s table: %v", table, err)
		}
	}

	return pool
}

func TestProjectUpdate_StaleVersionReturnsConflictWithCurrent(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	s := New(pool)

	ctx := context.Background()
	p, err := s.Projects.Create(ctx, domain.NewProject("Engineering", "ENG", "user-1"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Projects.Update(ctx, p.ID, p.Version, "Engineering v2", nil, domain.ProjectActive, "user-1"); err != nil {
		t.Fatalf("expected first update to succeed: %v", err)
	}

	err = s.Projects.Update(ctx, p.ID, p.Version, "Engineering v3", nil, domain.ProjectActive, "user-1")
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if e.CurrentVersion == nil || *e.CurrentVersion != p.Version+1 {
		t.Fatalf("expected current version %d, got %v", p.Version+1, e.CurrentVersion)
	}
}

func TestProjectNextWorkItemNumber_IncrementsAtomically(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	s := New(pool)

	ctx := context.Background()
	p, err := s.Projects.Create(ctx, domain.NewProject("Engineering", "ENG", "user-1"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.Projects.NextWorkItemNumber(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Projects.NextWorkItemNumber(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second != first+1 {
		t.Fatalf("expected sequential numbers, got %d then %d", first, second)
	}
}
