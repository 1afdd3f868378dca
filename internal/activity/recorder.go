package activity

import (
	"context"

	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
)

// activityRepository is the subset of store.ActivityRepository the
// recorder needs; declared as an interface so tests can substitute a
// fake without a database.
type activityRepository interface {
	Create(ctx context.Context, a domain.ActivityLog) (domain.ActivityLog, error)
}

// Recorder inserts an ActivityLog per mutation and publishes it via
// the tenant broadcaster so live clients see a stream of audit
// events (C13's last sentence).
type Recorder struct {
	activity activityRepository
	hub      *broadcast.Hub
}

func NewRecorder(activityRepo *store.ActivityRepository, hub *broadcast.Hub) *Recorder {
	return &Recorder{activity: activityRepo, hub: hub}
}

// Route carries the ids the subscription filter needs to decide
// interest in an activity event: it follows the type of its entity
// (C7's last line), so callers pass whichever of ProjectID/SprintID/
// WorkItemID the entity in question actually has.
type Route struct {
	ProjectID  string
	SprintID   string
	WorkItemID string
}

// RecordCreated logs a created event and broadcasts it to tenantID.
func (r *Recorder) RecordCreated(ctx context.Context, tenantID, entityType, entityID, userID string, route Route) error {
	return r.recordAndPublish(ctx, tenantID, domain.CreatedLog(entityType, entityID, userID), route)
}

// RecordUpdated logs an updated event carrying the count of changed
// fields (the "N fields changed" comment) and broadcasts it.
func (r *Recorder) RecordUpdated(ctx context.Context, tenantID, entityType, entityID, userID string, changes []FieldChange, route Route) error {
	return r.recordAndPublish(ctx, tenantID, domain.UpdatedLog(entityType, entityID, userID, len(changes)), route)
}

func (r *Recorder) RecordDeleted(ctx context.Context, tenantID, entityType, entityID, userID string, route Route) error {
	return r.recordAndPublish(ctx, tenantID, domain.DeletedLog(entityType, entityID, userID), route)
}

func (r *Recorder) recordAndPublish(ctx context.Context, tenantID string, log domain.ActivityLog, route Route) error {
	stored, err := r.activity.Create(ctx, log)
	if err != nil {
		return err
	}

	payload := activityLogPayload{
		ID:         stored.ID,
		EntityType: stored.EntityType,
		EntityID:   stored.EntityID,
		Action:     string(stored.Action),
		UserID:     stored.UserID,
		Comment:    stored.Comment,
	}
	env, err := wire.NewEnvelope(stored.ID, wire.TypeActivityLogCreated, payload)
	if err != nil {
		return err
	}
	frame, err := env.MarshalFrame()
	if err != nil {
		return err
	}
	r.hub.Publish(tenantID, broadcast.Event{
		ProjectID:  route.ProjectID,
		SprintID:   route.SprintID,
		WorkItemID: route.WorkItemID,
		Frame:      frame,
	})
	return nil
}

type activityLogPayload struct {
	ID         string  `json:"id"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Action     string  `json:"action"`
	UserID     string  `json:"user_id"`
	Comment    *string `json:"comment,omitempty"`
}
