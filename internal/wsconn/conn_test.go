package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/db"
	"github.com/pmsync/pmsync/internal/dispatch"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/idempotency"
	"github.com/pmsync/pmsync/internal/mutate"
	"github.com/pmsync/pmsync/internal/pmauth"
	"github.com/pmsync/pmsync/internal/resilience"
	"github.com/pmsync/pmsync/internal/shutdown"
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

func startTestServer(t *testing.T, pool *pgxpool.Pool) (*httptest.Server, domain.Project) {
	t.Helper()
	s := store.New(pool)
	hub := broadcast.New(config.DefaultBroadcastConfig(), zerolog.Nop())
	rec := activity.NewRecorder(s.Activity, hub)
	registry := wsregistry.New(config.DefaultConnectionLimits())
	coordinator := shutdown.New()

	p, err := s.Projects.Create(context.Background(), domain.NewProject("Engineering", "ENG", "user-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Members.Add(context.Background(), domain.ProjectMember{ProjectID: p.ID, UserID: "user-1", Role: domain.RoleMember}); err != nil {
		t.Fatal(err)
	}

	d := &dispatch.Dispatcher{
		WorkItems:   mutate.NewWorkItemMutator(s, rec, hub),
		Sprints:     mutate.NewSprintMutator(s, rec, hub),
		Comments:    mutate.NewCommentMutator(s, rec, hub),
		Deps:        mutate.NewDependencyMutator(s, rec, hub),
		TimeEntries: mutate.NewTimeEntryMutator(s, rec),
		Store:       s,
		Registry:    registry,
		Idempotency: idempotency.New(pool, config.DefaultIdempotencyConfig(), zerolog.Nop()),
		Breaker:     resilience.NewBreaker("test", config.DefaultCircuitBreakerConfig()),
		Retrier:     resilience.NewRetrier(config.DefaultRetryConfig()),
		Log:         zerolog.Nop(),
	}
	wsCfg := config.DefaultWebSocketConfig()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		limiter := pmauth.NewConnectionRateLimiter(1000, 60)
		conn := New(ws, registry, d, hub, coordinator, wsCfg, 5*time.Second, limiter, "tenant-1", zerolog.Nop())
		_ = conn.Run(r.Context(), "user-1")
	})

	srv := httptest.NewServer(handler)
	return srv, p
}

func TestConn_CreateWorkItemRoundTrip(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	srv, p := startTestServer(t, pool)
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	env, err := wire.NewEnvelope("m-1", wire.TypeCreateWorkItem, wire.CreateWorkItemRequest{
		ProjectID: p.ID, ItemType: string(domain.WorkItemProject), Title: "Root", Status: "todo", Priority: "medium",
	})
	if err != nil {
		t.Fatal(err)
	}
	frame, err := env.MarshalFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, respFrame, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp, err := wire.UnmarshalFrame(respFrame)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Type != wire.TypeWorkItemCreated {
		t.Fatalf("expected WorkItemCreated, got %v (payload=%s)", resp.Type, resp.Payload)
	}
	if resp.MessageID != "m-1" {
		t.Fatalf("expected response to echo message_id, got %q", resp.MessageID)
	}
}

// TestConn_BroadcastDeliveredToSubscriber exercises the full C8 fan-out
// path: one connection subscribes to a project, a second connection
// creates a work item in it, and the subscriber must observe the
// resulting ActivityLogCreated frame followed by the WorkItemCreated
// frame on its own socket without having issued the mutation itself.
func TestConn_BroadcastDeliveredToSubscriber(t *testing.T) {
	pool := getTestDB(t)
	defer pool.Close()
	srv, p := startTestServer(t, pool)
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subscriber, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial subscriber: %v", err)
	}
	defer subscriber.Close(websocket.StatusNormalClosure, "")

	subEnv, err := wire.NewEnvelope("sub-1", wire.TypeSubscribe, wire.SubscribePayload{ProjectIDs: []string{p.ID}})
	if err != nil {
		t.Fatal(err)
	}
	subFrame, err := subEnv.MarshalFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err := subscriber.Write(ctx, websocket.MessageBinary, subFrame); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if _, _, err := subscriber.Read(ctx); err != nil {
		t.Fatalf("read subscribe ack: %v", err)
	}

	actor, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial actor: %v", err)
	}
	defer actor.Close(websocket.StatusNormalClosure, "")

	createEnv, err := wire.NewEnvelope("m-2", wire.TypeCreateWorkItem, wire.CreateWorkItemRequest{
		ProjectID: p.ID, ItemType: string(domain.WorkItemProject), Title: "Root", Status: "todo", Priority: "medium",
	})
	if err != nil {
		t.Fatal(err)
	}
	createFrame, err := createEnv.MarshalFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err := actor.Write(ctx, websocket.MessageBinary, createFrame); err != nil {
		t.Fatalf("write create: %v", err)
	}
	if _, _, err := actor.Read(ctx); err != nil {
		t.Fatalf("read create response: %v", err)
	}

	_, activityFrame, err := subscriber.Read(ctx)
	if err != nil {
		t.Fatalf("read activity frame: %v", err)
	}
	activityEnv, err := wire.UnmarshalFrame(activityFrame)
	if err != nil {
		t.Fatal(err)
	}
	if activityEnv.Type != wire.TypeActivityLogCreated {
		t.Fatalf("expected ActivityLogCreated broadcast first, got %v (payload=%s)", activityEnv.Type, activityEnv.Payload)
	}

	_, broadcastFrame, err := subscriber.Read(ctx)
	if err != nil {
		t.Fatalf("read broadcast frame: %v", err)
	}
	broadcastEnv, err := wire.UnmarshalFrame(broadcastFrame)
	if err != nil {
		t.Fatal(err)
	}
	if broadcastEnv.Type != wire.TypeWorkItemCreated {
		t.Fatalf("expected WorkItemCreated broadcast, got %v (payload=%s)", broadcastEnv.Type, broadcastEnv.Payload)
	}
}
