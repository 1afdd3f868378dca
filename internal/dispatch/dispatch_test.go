package dispatch

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/db"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/idempotency"
	"github.com/pmsync/pmsync/internal/mutate"
	"github.com/pmsync/pmsync/internal/reqctx"
	"github.com/pmsync/pmsync/internal/resilience"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
	"github.com/pmsync/pmsync/internal/wsregistry"
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
	for _, table := range []string{"idempotency_cache", "comments", "time_entries", "activity_logs", "project_members", "work_items", "projects"} {
		if _, err := pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean %s table: %v", table, err)
		}
	}
	return pool
}

func newDispatcher(t *testing.T, pool *pgxpool.Pool) (*Dispatcher, domain.Project) {
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

	d := &Dispatcher{
		WorkItems:   mutate.NewWorkItemMutator(s, rec, hub),
		Sprints:     mutate.NewSprintMutator(s, rec, hub),
		Comments:    mutate.NewCommentMutator(s, rec, hub),
		Deps:        mutate.NewDependencyMutator(s, rec, hub),
		TimeEntries: mutate.NewTimeEntryMutator(s, rec),
		Store:       s,
		Registry:    wsregistry.New(config.DefaultConnectionLimits()),
		Idempotency: idempotency.New(pool, config.DefaultIdempotencyConfig(), zerolog.Nop()),
		Breaker:     resilience.NewBreaker("test", config.DefaultCircuitBreakerConfig()),
		Retrier:     resilience.NewRetrier(config.DefaultRetryConfig()),
		Log:         zerolog.Nop(),
	}
	return d, p
}

func createWorkItemEnvelope(t *testing.T, messageID, projectID string) wire.Envelope {
	t.Helper()
	env, err := wire.NewEnvelope(messageID, wire.TypeCreateWorkItem, wire.CreateWorkItemRequest{
		ProjectID: projectID, ItemType: string(domain.WorkItemProject), Title: "Root", Status: "todo", Priority: "medium",
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDispatch_CreateWorkItemReturnsWorkItemCreatedEvent(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	d, p := newDispatcher(t, pool)

	env := createWorkItemEnvelope(t, "m-1", p.ID)
	rc := reqctx.New("user-1", "conn-1", env.MessageID)
	result := d.Dispatch(context.Background(), rc, "tenant-1", env)

	if result.Type != wire.TypeWorkItemCreated {
		t.Fatalf("expected WorkItemCreated, got %v (payload=%s)", result.Type, result.Payload)
	}
	if result.MessageID != "m-1" {
		t.Fatalf("expected response message_id to echo the request, got %q", result.MessageID)
	}
}

func TestDispatch_ResentMessageIDReturnsByteEqualCachedResponse(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	d, p := newDispatcher(t, pool)

	env := createWorkItemEnvelope(t, "m-dup", p.ID)
	ctx := context.Background()

	first := d.Dispatch(ctx, reqctx.New("user-1", "conn-1", env.MessageID), "tenant-1", env)
	second := d.Dispatch(ctx, reqctx.New("user-1", "conn-1", env.MessageID), "tenant-1", env)

	firstFrame, _ := first.MarshalFrame()
	secondFrame, _ := second.MarshalFrame()
	if string(firstFrame) != string(secondFrame) {
		t.Fatalf("expected byte-equal replay, got first=%s second=%s", firstFrame, secondFrame)
	}

	items, err := d.Store.WorkItems.ListByProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly one work item despite the resend, got %d", len(items))
	}
}

func TestDispatch_UnknownMessageTypeReturnsInvalidMessageError(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	d, _ := newDispatcher(t, pool)

	env := wire.Envelope{MessageID: "m-bad", Type: "NotAType"}
	result := d.Dispatch(context.Background(), reqctx.New("user-1", "conn-1", env.MessageID), "tenant-1", env)

	if result.Type != wire.TypeError {
		t.Fatalf("expected an Error envelope, got %v", result.Type)
	}
	var payload wire.ErrorPayload
	if err := json.Unmarshal(result.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != "INVALID_MESSAGE" {
		t.Fatalf("expected INVALID_MESSAGE code, got %q", payload.Code)
	}
}

func TestDispatch_SubscribeAcknowledgesWithEmptyPayload(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	d, p := newDispatcher(t, pool)

	info, err := d.Registry.Register("user-1", "tenant-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	env, err := wire.NewEnvelope("m-sub", wire.TypeSubscribe, wire.SubscribePayload{ProjectIDs: []string{p.ID}})
	if err != nil {
		t.Fatal(err)
	}
	rc := reqctx.New("user-1", info.ConnectionID, env.MessageID)
	result := d.Dispatch(context.Background(), rc, "tenant-1", env)

	if result.Type != wire.TypeAck {
		t.Fatalf("expected Ack, got %v", result.Type)
	}
	if len(result.Payload) != 0 {
		t.Fatalf("expected empty Ack payload, got %s", result.Payload)
	}
	if !info.Subscriptions.IsSubscribedToProject(p.ID) {
		t.Fatalf("expected connection to be subscribed to project %s", p.ID)
	}
}
