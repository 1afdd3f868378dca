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

type CommentMutator struct {
	store    *store.Store
	activity *activity.Recorder
	hub      *broadcast.Hub
}

func NewCommentMutator(s *store.Store, rec *activity.Recorder, hub *broadcast.Hub) *CommentMutator {
	return &CommentMutator{store: s, activity: rec, hub: hub}
}

func (m *CommentMutator) Create(ctx context.Context, tenantID, userID string, req wire.CreateCommentRequest) (domain.Comment, error) {
	workItem, err := m.store.WorkItems.Get(ctx, req.WorkItemID)
	if err != nil {
		return domain.Comment{}, err
	}
	if workItem.ProjectID != req.ProjectID {
		return domain.Comment{}, pmerr.ValidationErr("work_item_id", "work item does not belong to the given project")
	}
	if err := authorize(ctx, m.store.Members, req.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.Comment{}, err
	}

	c := domain.NewComment(req.WorkItemID, req.ProjectID, userID, req.Body)
	created, err := m.store.Comments.Create(ctx, c)
	if err != nil {
		return domain.Comment{}, err
	}

	if err := m.activity.RecordCreated(ctx, tenantID, "comment", created.ID, userID,
		activity.Route{ProjectID: created.ProjectID, WorkItemID: created.WorkItemID}); err != nil {
		return domain.Comment{}, pmerr.InternalErr(err)
	}

	payload := wire.CommentPayload{ID: created.ID, WorkItemID: created.WorkItemID, ProjectID: created.ProjectID, AuthorID: created.AuthorID, Body: created.Body}
	env, err := wire.NewEnvelope(created.ID, wire.TypeCommentCreated, payload)
	if err == nil {
		if frame, err := env.MarshalFrame(); err == nil {
			m.hub.Publish(tenantID, broadcast.Event{ProjectID: created.ProjectID, WorkItemID: created.WorkItemID, Frame: frame})
		}
	}
	return created, nil
}
