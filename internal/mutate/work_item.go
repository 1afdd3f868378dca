package mutate

import (
	"context"
	"strconv"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
)

// WorkItemMutator implements C12's versioned update and
// hierarchy-validated create path for work items.
type WorkItemMutator struct {
	store    *store.Store
	activity *activity.Recorder
	hub      *broadcast.Hub
}

func NewWorkItemMutator(s *store.Store, rec *activity.Recorder, hub *broadcast.Hub) *WorkItemMutator {
	return &WorkItemMutator{store: s, activity: rec, hub: hub}
}

// Create validates the parent hierarchy, allocates item_number from
// the project's counter in the same round trip, inserts the row, and
// publishes a WorkItemCreated event.
func (m *WorkItemMutator) Create(ctx context.Context, tenantID, userID string, req wire.CreateWorkItemRequest) (domain.WorkItem, error) {
	if err := authorize(ctx, m.store.Members, req.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.WorkItem{}, err
	}

	itemType := domain.WorkItemType(req.ItemType)
	if req.ParentID != nil {
		parent, err := m.store.WorkItems.Get(ctx, *req.ParentID)
		if err != nil {
			return domain.WorkItem{}, err
		}
		if !domain.ValidParentage(itemType, parent.ItemType) {
			return domain.WorkItem{}, pmerr.ValidationErr("parent_id", "invalid parent hierarchy for item type")
		}
	} else if itemType != domain.WorkItemProject {
		return domain.WorkItem{}, pmerr.ValidationErr("parent_id", "non-root item types require a parent")
	}
	if !domain.ValidWorkItemStatuses[req.Status] {
		return domain.WorkItem{}, pmerr.ValidationErr("status", "unknown work item status")
	}
	if !domain.ValidWorkItemPriorities[req.Priority] {
		return domain.WorkItem{}, pmerr.ValidationErr("priority", "unknown work item priority")
	}

	itemNumber, err := m.store.Projects.NextWorkItemNumber(ctx, req.ProjectID)
	if err != nil {
		return domain.WorkItem{}, err
	}

	w := domain.NewWorkItem(req.ProjectID, itemType, req.ParentID, req.Title, req.Description,
		req.Status, req.Priority, req.AssigneeID, req.SprintID, req.StoryPoints,
		itemNumber, req.Position, userID)
	created, err := m.store.WorkItems.Create(ctx, w)
	if err != nil {
		return domain.WorkItem{}, err
	}

	if err := m.activity.RecordCreated(ctx, tenantID, "work_item", created.ID, userID,
		activity.Route{ProjectID: created.ProjectID, WorkItemID: created.ID}); err != nil {
		return domain.WorkItem{}, pmerr.InternalErr(err)
	}
	m.publish(tenantID, wire.TypeWorkItemCreated, created)
	return created, nil
}

// Update reloads the current row, validates the request, derives
// field-level changes before issuing the write, and applies the
// optimistic-lock UPDATE.
func (m *WorkItemMutator) Update(ctx context.Context, tenantID, userID string, req wire.UpdateWorkItemRequest) (domain.WorkItem, error) {
	current, err := m.store.WorkItems.Get(ctx, req.ID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := authorize(ctx, m.store.Members, current.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.WorkItem{}, err
	}

	next := current
	builder := activity.NewFieldChangeBuilder()
	if req.Title != nil {
		builder.TrackString("title", current.Title, *req.Title)
		next.Title = *req.Title
	}
	if req.Description != nil {
		builder.TrackOptionalString("description", current.Description, req.Description)
		next.Description = req.Description
	}
	if req.Status != nil {
		if !domain.ValidWorkItemStatuses[*req.Status] {
			return domain.WorkItem{}, pmerr.ValidationErr("status", "unknown work item status")
		}
		builder.TrackString("status", current.Status, *req.Status)
		next.Status = *req.Status
	}
	if req.Priority != nil {
		if !domain.ValidWorkItemPriorities[*req.Priority] {
			return domain.WorkItem{}, pmerr.ValidationErr("priority", "unknown work item priority")
		}
		builder.TrackString("priority", current.Priority, *req.Priority)
		next.Priority = *req.Priority
	}
	if req.AssigneeID != nil {
		builder.TrackOptionalString("assignee_id", current.AssigneeID, req.AssigneeID)
		next.AssigneeID = req.AssigneeID
	}
	if req.SprintID != nil {
		builder.TrackOptionalString("sprint_id", current.SprintID, req.SprintID)
		next.SprintID = req.SprintID
	}
	if req.StoryPoints != nil {
		oldPoints := ""
		if current.StoryPoints != nil {
			oldPoints = strconv.Itoa(*current.StoryPoints)
		}
		builder.TrackString("story_points", oldPoints, strconv.Itoa(*req.StoryPoints))
		next.StoryPoints = req.StoryPoints
	}
	if req.Position != nil {
		builder.TrackString("position", strconv.Itoa(current.Position), strconv.Itoa(*req.Position))
		next.Position = *req.Position
	}
	next.UpdatedBy = userID

	if err := m.store.WorkItems.Update(ctx, req.ID, req.ExpectedVersion, next); err != nil {
		return domain.WorkItem{}, err
	}
	next.Version = req.ExpectedVersion + 1

	if err := m.activity.RecordUpdated(ctx, tenantID, "work_item", next.ID, userID, builder.Build(),
		activity.Route{ProjectID: next.ProjectID, WorkItemID: next.ID}); err != nil {
		return domain.WorkItem{}, pmerr.InternalErr(err)
	}
	m.publish(tenantID, wire.TypeWorkItemUpdated, next)
	return next, nil
}

func (m *WorkItemMutator) publish(tenantID string, msgType wire.MessageType, w domain.WorkItem) {
	payload := wire.WorkItemPayload{
		ID: w.ID, ProjectID: w.ProjectID, ItemType: string(w.ItemType), ParentID: w.ParentID,
		Title: w.Title, Description: w.Description, Status: w.Status, Priority: w.Priority,
		AssigneeID: w.AssigneeID, SprintID: w.SprintID, StoryPoints: w.StoryPoints,
		ItemNumber: w.ItemNumber, Position: w.Position, Version: w.Version,
	}
	env, err := wire.NewEnvelope(w.ID, msgType, payload)
	if err != nil {
		return
	}
	frame, err := env.MarshalFrame()
	if err != nil {
		return
	}
	m.hub.Publish(tenantID, broadcast.Event{ProjectID: w.ProjectID, WorkItemID: w.ID, Frame: frame})
}
