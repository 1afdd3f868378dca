package activity

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/domain"
)

type fakeActivityRepo struct {
	created []domain.ActivityLog
}

func (f *fakeActivityRepo) Create(ctx context.Context, a domain.ActivityLog) (domain.ActivityLog, error) {
	a.ID = "log-1"
	f.created = append(f.created, a)
	return a, nil
}

func TestRecordUpdated_PublishesToTenantWithRouteIDs(t *testing.T) {
	repo := &fakeActivityRepo{}
	hub := broadcast.New(config.BroadcastConfig{ChannelCapacity: 4}, zerolog.Nop())
	recv := hub.Subscribe("tenant-a")
	defer recv.Close()

	r := &Recorder{activity: repo, hub: hub}
	err := r.RecordUpdated(context.Background(), "tenant-a", "work_item", "wi-1", "user-1",
		[]FieldChange{{FieldName: "title"}}, Route{ProjectID: "proj-1", WorkItemID: "wi-1"})
	if err != nil {
		t.Fatal(err)
	}

	if len(repo.created) != 1 || repo.created[0].Comment == nil || *repo.created[0].Comment != "1 fields changed" {
		t.Fatalf("unexpected stored log: %+v", repo.created)
	}

	select {
	case ev := <-recv.C:
		if ev.ProjectID != "proj-1" || ev.WorkItemID != "wi-1" {
			t.Errorf("unexpected routing: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast event")
	}
}
