package mutate

import (
	"context"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wire"
)

type SprintMutator struct {
	store    *store.Store
	activity *activity.Recorder
	hub      *broadcast.Hub
}

func NewSprintMutator(s *store.Store, rec *activity.Recorder, hub *broadcast.Hub) *SprintMutator {
	return &SprintMutator{store: s, activity: rec, hub: hub}
}

func (m *SprintMutator) Create(ctx context.Context, tenantID, userID string, req wire.CreateSprintRequest) (domain.Sprint, error) {
	if err := authorize(ctx, m.store.Members, req.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.Sprint{}, err
	}
	if !req.StartDate.Before(req.EndDate) {
		return domain.Sprint{}, pmerr.ValidationErr("end_date", "sprint end_date must be after start_date")
	}

	s := domain.NewSprint(req.ProjectID, req.Name, userID, req.StartDate, req.EndDate)
	s.Goal = req.Goal
	created, err := m.store.Sprints.Create(ctx, s)
	if err != nil {
		return domain.Sprint{}, err
	}

	if err := m.activity.RecordCreated(ctx, tenantID, "sprint", created.ID, userID,
		activity.Route{ProjectID: created.ProjectID, SprintID: created.ID}); err != nil {
		return domain.Sprint{}, pmerr.InternalErr(err)
	}
	m.publish(tenantID, wire.TypeSprintCreated, created)
	return created, nil
}

func (m *SprintMutator) Update(ctx context.Context, tenantID, userID string, req wire.UpdateSprintRequest) (domain.Sprint, error) {
	current, err := m.store.Sprints.Get(ctx, req.ID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := authorize(ctx, m.store.Members, current.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.Sprint{}, err
	}

	next := current
	builder := activity.NewFieldChangeBuilder()
	if req.Name != nil {
		builder.TrackString("name", current.Name, *req.Name)
		next.Name = *req.Name
	}
	if req.Goal != nil {
		builder.TrackOptionalString("goal", current.Goal, req.Goal)
		next.Goal = req.Goal
	}
	if req.StartDate != nil {
		next.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		next.EndDate = *req.EndDate
	}
	if !next.StartDate.Before(next.EndDate) {
		return domain.Sprint{}, pmerr.ValidationErr("end_date", "sprint end_date must be after start_date")
	}
	if req.Status != nil {
		status := domain.SprintStatus(*req.Status)
		builder.TrackString("status", string(current.Status), *req.Status)
		next.Status = status
	}
	next.UpdatedBy = userID

	if err := m.store.Sprints.Update(ctx, req.ID, req.ExpectedVersion, next); err != nil {
		return domain.Sprint{}, err
	}
	next.Version = req.ExpectedVersion + 1

	if err := m.activity.RecordUpdated(ctx, tenantID, "sprint", next.ID, userID, builder.Build(),
		activity.Route{ProjectID: next.ProjectID, SprintID: next.ID}); err != nil {
		return domain.Sprint{}, pmerr.InternalErr(err)
	}
	m.publish(tenantID, wire.TypeSprintUpdated, next)
	return next, nil
}

func (m *SprintMutator) publish(tenantID string, msgType wire.MessageType, s domain.Sprint) {
	payload := wire.SprintPayload{
		ID: s.ID, ProjectID: s.ProjectID, Name: s.Name, Goal: s.Goal,
		StartDate: s.StartDate, EndDate: s.EndDate, Status: string(s.Status), Version: s.Version,
	}
	env, err := wire.NewEnvelope(s.ID, msgType, payload)
	if err != nil {
		return
	}
	frame, err := env.MarshalFrame()
	if err != nil {
		return
	}
	m.hub.Publish(tenantID, broadcast.Event{ProjectID: s.ProjectID, SprintID: s.ID, Frame: frame})
}
