package mutate

import (
	"context"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
)

// TimeEntryMutator is insert-only: time entries are never edited in
// place, only logged and later superseded by a new entry.
type TimeEntryMutator struct {
	store    *store.Store
	activity *activity.Recorder
}

func NewTimeEntryMutator(s *store.Store, rec *activity.Recorder) *TimeEntryMutator {
	return &TimeEntryMutator{store: s, activity: rec}
}

func (m *TimeEntryMutator) Create(ctx context.Context, tenantID, userID string, req wire.CreateTimeEntryRequest) (domain.TimeEntry, error) {
	if req.Minutes <= 0 {
		return domain.TimeEntry{}, pmerr.ValidationErr("minutes", "minutes must be positive")
	}
	workItem, err := m.store.WorkItems.Get(ctx, req.WorkItemID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if workItem.ProjectID != req.ProjectID {
		return domain.TimeEntry{}, pmerr.ValidationErr("work_item_id", "work item does not belong to the given project")
	}
	if err := authorize(ctx, m.store.Members, req.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.TimeEntry{}, err
	}

	t := domain.NewTimeEntry(req.WorkItemID, req.ProjectID, userID, req.Minutes, req.Note, req.LoggedAt)
	created, err := m.store.Time.Create(ctx, t)
	if err != nil {
		return domain.TimeEntry{}, err
	}

	// No dedicated wire event type exists for time entries; the
	// activity log insert is the only live notification clients get.
	if err := m.activity.RecordCreated(ctx, tenantID, "time_entry", created.ID, userID,
		activity.Route{ProjectID: created.ProjectID, WorkItemID: created.WorkItemID}); err != nil {
		return domain.TimeEntry{}, pmerr.InternalErr(err)
	}
	return created, nil
}
