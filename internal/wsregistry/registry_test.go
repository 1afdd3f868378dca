package wsregistry

import (
	"testing"

	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/pmerr"
)

type fakeSender struct{ sent [][]byte }

func (f *fakeSender) Send(frame []byte) bool {
	f.sent = append(f.sent, frame)
	return true
}

func TestRegister_RejectsOverTenantLimit(t *testing.T) {
	r := New(config.ConnectionLimits{MaxPerTenant: 1, MaxTotal: 10})
	if _, err := r.Register("user-1", "tenant-a", &fakeSender{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := r.Register("user-2", "tenant-a", &fakeSender{})
	if e, ok := pmerr.As(err); !ok || e.Kind != pmerr.ConnectionLimitExceed {
		t.Fatalf("expected ConnectionLimitExceed, got %v", err)
	}
	// A different tenant is unaffected.
	if _, err := r.Register("user-3", "tenant-b", &fakeSender{}); err != nil {
		t.Fatalf("other tenant register: %v", err)
	}
}

func TestUnregister_IsIdempotent(t *testing.T) {
	r := New(config.DefaultConnectionLimits())
	info, err := r.Register("user-1", "tenant-a", &fakeSender{})
	if err != nil {
		t.Fatal(err)
	}
	r.Unregister(info.ConnectionID)
	r.Unregister(info.ConnectionID) // must not panic
	if r.TotalCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", r.TotalCount())
	}
}

func TestSubscribe_ThenFilterMatches(t *testing.T) {
	r := New(config.DefaultConnectionLimits())
	info, err := r.Register("user-1", "tenant-a", &fakeSender{})
	if err != nil {
		t.Fatal(err)
	}
	r.Subscribe(info.ConnectionID, []string{"proj-1"}, nil, nil)

	f := Filter{}
	if !f.ShouldReceiveWorkItemEvent(info.Subscriptions, "proj-1", "wi-unrelated") {
		t.Errorf("expected project subscription to cover all its work items")
	}
	if f.ShouldReceiveWorkItemEvent(info.Subscriptions, "proj-2", "wi-unrelated") {
		t.Errorf("expected no match for an unsubscribed project")
	}
}

func TestShouldReceiveSprintEvent_MatchesDirectSprintSubscription(t *testing.T) {
	subs := NewClientSubscriptions()
	subs.SubscribeSprints([]string{"sprint-1"})

	f := Filter{}
	if !f.ShouldReceiveSprintEvent(subs, "proj-1", "sprint-1") {
		t.Errorf("expected direct sprint subscription to match")
	}
	if f.ShouldReceiveSprintEvent(subs, "proj-1", "sprint-2") {
		t.Errorf("expected no match for a different sprint")
	}
}

func TestShouldReceiveCommentEvent_FollowsWorkItemRules(t *testing.T) {
	subs := NewClientSubscriptions()
	subs.SubscribeWorkItems([]string{"wi-1"})

	f := Filter{}
	if !f.ShouldReceiveCommentEvent(subs, "proj-1", "wi-1") {
		t.Errorf("expected comment event to follow work item subscription")
	}
}

func TestIterByTenant_ReturnsOnlyThatTenantsConnections(t *testing.T) {
	r := New(config.DefaultConnectionLimits())
	a, _ := r.Register("user-1", "tenant-a", &fakeSender{})
	_, _ = r.Register("user-2", "tenant-b", &fakeSender{})

	got := r.IterByTenant("tenant-a")
	if len(got) != 1 || got[0].ConnectionID != a.ConnectionID {
		t.Fatalf("expected exactly connection %s, got %v", a.ConnectionID, got)
	}
}
