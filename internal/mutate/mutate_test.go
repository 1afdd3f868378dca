package mutate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/db"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
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

	for _, table := range []string{"dependencies", "comments", "time_entries", "activity_logs", "project_members", "work_items", "projects"} {
		if _, err := pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean %s table: %v", table, err)
		}
	}

	return pool
}

type fixture struct {
	store   *store.Store
	hub     *broadcast.Hub
	rec     *activity.Recorder
	project domain.Project
}

func newFixture(t *testing.T, pool *pgxpool.Pool) fixture {
	t.Helper()
	s := store.New(pool)
	hub := broadcast.New(config.DefaultBroadcastConfig(), zerolog.Nop())
	rec := activity.NewRecorder(s.Activity, hub)

	p, err := s.Projects.Create(context.Background(), domain.NewProject("Engineering", "ENG", "user-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Members.Add(context.Background(), domain.ProjectMember{ProjectID: p.ID, UserID: "user-1", Role: domain.RoleMember}); err != nil {
		t.Fatal(err)
	}
	return fixture{store: s, hub: hub, rec: rec, project: p}
}

func (f fixture) newRootItem(t *testing.T) domain.WorkItem {
	t.Helper()
	m := NewWorkItemMutator(f.store, f.rec, f.hub)
	w, err := m.Create(context.Background(), "tenant-1", "user-1", wire.CreateWorkItemRequest{
		ProjectID: f.project.ID,
		ItemType:  string(domain.WorkItemProject),
		Title:     "Root item",
		Status:    "todo",
		Priority:  "medium",
		Position:  0,
	})
	if err != nil {
		t.Fatalf("creating root item: %v", err)
	}
	return w
}

func TestWorkItemMutator_CreateRejectsNonMember(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)

	m := NewWorkItemMutator(f.store, f.rec, f.hub)
	_, err := m.Create(context.Background(), "tenant-1", "stranger", wire.CreateWorkItemRequest{
		ProjectID: f.project.ID, ItemType: string(domain.WorkItemEpic), Title: "x", Status: "todo", Priority: "medium",
	})
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Unauthorized {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestWorkItemMutator_UpdateTracksOnlyChangedFields(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)
	w := f.newRootItem(t)

	m := NewWorkItemMutator(f.store, f.rec, f.hub)
	newTitle := "Root item v2"
	updated, err := m.Update(context.Background(), "tenant-1", "user-1", wire.UpdateWorkItemRequest{
		ID: w.ID, ExpectedVersion: w.Version, Title: &newTitle,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != newTitle {
		t.Fatalf("expected title updated, got %q", updated.Title)
	}
	if updated.Status != w.Status {
		t.Fatalf("status should be unchanged, got %q", updated.Status)
	}
}

func TestWorkItemMutator_UpdateStaleVersionReturnsConflict(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)
	w := f.newRootItem(t)

	m := NewWorkItemMutator(f.store, f.rec, f.hub)
	newTitle := "first"
	if _, err := m.Update(context.Background(), "tenant-1", "user-1", wire.UpdateWorkItemRequest{
		ID: w.ID, ExpectedVersion: w.Version, Title: &newTitle,
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	staleTitle := "second"
	_, err := m.Update(context.Background(), "tenant-1", "user-1", wire.UpdateWorkItemRequest{
		ID: w.ID, ExpectedVersion: w.Version, Title: &staleTitle,
	})
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestDependencyMutator_RejectsDirectCycle(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)
	root := f.newRootItem(t)

	wm := NewWorkItemMutator(f.store, f.rec, f.hub)
	child, err := wm.Create(context.Background(), "tenant-1", "user-1", wire.CreateWorkItemRequest{
		ProjectID: f.project.ID, ItemType: string(domain.WorkItemEpic), ParentID: &root.ID,
		Title: "child", Status: "todo", Priority: "medium",
	})
	if err != nil {
		t.Fatalf("creating child: %v", err)
	}

	dm := NewDependencyMutator(f.store, f.rec, f.hub)
	if _, err := dm.Create(context.Background(), "tenant-1", "user-1", wire.CreateDependencyRequest{
		BlockingItemID: root.ID, BlockedItemID: child.ID, DependencyType: "blocks",
	}); err != nil {
		t.Fatalf("creating first edge: %v", err)
	}

	_, err = dm.Create(context.Background(), "tenant-1", "user-1", wire.CreateDependencyRequest{
		BlockingItemID: child.ID, BlockedItemID: root.ID, DependencyType: "blocks",
	})
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Validation {
		t.Fatalf("expected Validation for cycle, got %v", err)
	}
}

func TestSprintMutator_CreateRejectsInvertedDateRange(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)

	m := NewSprintMutator(f.store, f.rec, f.hub)
	start := time.Now()
	end := start.Add(-24 * time.Hour)
	_, err := m.Create(context.Background(), "tenant-1", "user-1", wire.CreateSprintRequest{
		ProjectID: f.project.ID, Name: "Sprint 1", StartDate: start, EndDate: end,
	})
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestCommentMutator_CreateRejectsWorkItemFromAnotherProject(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)
	w := f.newRootItem(t)

	other, err := f.store.Projects.Create(context.Background(), domain.NewProject("Other", "OTH", "user-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.Members.Add(context.Background(), domain.ProjectMember{ProjectID: other.ID, UserID: "user-1", Role: domain.RoleMember}); err != nil {
		t.Fatal(err)
	}

	m := NewCommentMutator(f.store, f.rec, f.hub)
	_, err = m.Create(context.Background(), "tenant-1", "user-1", wire.CreateCommentRequest{
		WorkItemID: w.ID, ProjectID: other.ID, Body: "hi",
	})
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestTimeEntryMutator_CreateRejectsNonPositiveMinutes(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	f := newFixture(t, pool)
	w := f.newRootItem(t)

	m := NewTimeEntryMutator(f.store, f.rec)
	_, err := m.Create(context.Background(), "tenant-1", "user-1", wire.CreateTimeEntryRequest{
		WorkItemID: w.ID, ProjectID: f.project.ID, Minutes: 0, LoggedAt: time.Now(),
	})
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}
