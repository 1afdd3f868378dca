package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
)

type WorkItemRepository struct {
	pool *pgxpool.Pool
}

func (r *WorkItemRepository) Create(ctx context.Context, w domain.WorkItem) (domain.WorkItem, error) {
	w.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO work_items (id, project_id, item_type, parent_id, title, description, status,
			priority, assignee_id, sprint_id, story_points, item_number, position, version,
			created_at, updated_at, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, w.ID, w.ProjectID, w.ItemType, w.ParentID, w.Title, w.Description, w.Status, w.Priority,
		w.AssigneeID, w.SprintID, w.StoryPoints, w.ItemNumber, w.Position, w.Version,
		w.CreatedAt, w.UpdatedAt, w.CreatedBy, w.UpdatedBy)
	if err != nil {
		return domain.WorkItem{}, err
	}
	return w, nil
}

func (r *WorkItemRepository) Get(ctx context.Context, id string) (domain.WorkItem, error) {
	var w domain.WorkItem
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, item_type, parent_id, title, description, status, priority,
			assignee_id, sprint_id, story_points, item_number, position, version,
			created_at, updated_at, created_by, updated_by, deleted_at
		FROM work_items WHERE id = $1
	`, id).Scan(&w.ID, &w.ProjectID, &w.ItemType, &w.ParentID, &w.Title, &w.Description, &w.Status,
		&w.Priority, &w.AssigneeID, &w.SprintID, &w.StoryPoints, &w.ItemNumber, &w.Position,
		&w.Version, &w.CreatedAt, &w.UpdatedAt, &w.CreatedBy, &w.UpdatedBy, &w.DeletedAt)
	if err != nil {
		return domain.WorkItem{}, notFoundOnNoRows(err, "work item not found")
	}
	if w.IsDeleted() {
		return domain.WorkItem{}, pmerr.NotFoundErr("work item not found")
	}
	return w, nil
}

func (r *WorkItemRepository) currentVersion(ctx context.Context, id string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		var v int64
		err := r.pool.QueryRow(ctx, `SELECT version FROM work_items WHERE id = $1`, id).Scan(&v)
		return v, err
	}
}

// Update applies the mutable fields of a work item under optimistic
// locking; hierarchy, status, and priority are validated by the
// mutator before this is called.
func (r *WorkItemRepository) Update(ctx context.Context, id string, expectedVersion int64, w domain.WorkItem) error {
	return versionedUpdate(ctx, r.pool, `
		UPDATE work_items SET title = $1, description = $2, status = $3, priority = $4,
			assignee_id = $5, sprint_id = $6, story_points = $7, position = $8,
			updated_by = $9, updated_at = now(), version = version + 1
		WHERE id = $10 AND version = $11 AND deleted_at IS NULL
	`, []any{w.Title, w.Description, w.Status, w.Priority, w.AssigneeID, w.SprintID,
		w.StoryPoints, w.Position, w.UpdatedBy, id, expectedVersion}, r.currentVersion(ctx, id))
}

func (r *WorkItemRepository) SoftDelete(ctx context.Context, id string, expectedVersion int64, updatedBy string) error {
	return versionedUpdate(ctx, r.pool, `
		UPDATE work_items SET deleted_at = now(), updated_by = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND deleted_at IS NULL
	`, []any{updatedBy, id, expectedVersion}, r.currentVersion(ctx, id))
}

// ListByProject returns non-deleted work items for a project, used by
// GetWorkItems.
func (r *WorkItemRepository) ListByProject(ctx context.Context, projectID string) ([]domain.WorkItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, item_type, parent_id, title, description, status, priority,
			assignee_id, sprint_id, story_points, item_number, position, version,
			created_at, updated_at, created_by, updated_by, deleted_at
		FROM work_items WHERE project_id = $1 AND deleted_at IS NULL
		ORDER BY position ASC, item_number ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		var w domain.WorkItem
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.ItemType, &w.ParentID, &w.Title, &w.Description,
			&w.Status, &w.Priority, &w.AssigneeID, &w.SprintID, &w.StoryPoints, &w.ItemNumber,
			&w.Position, &w.Version, &w.CreatedAt, &w.UpdatedAt, &w.CreatedBy, &w.UpdatedBy, &w.DeletedAt); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// OutgoingBlocks returns the work_item ids that id's "blocks" edges
// point at, used by the dependency cycle check.
func (r *WorkItemRepository) OutgoingBlocks(ctx context.Context, id string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT blocked_item_id FROM dependencies
		WHERE blocking_item_id = $1 AND dependency_type = 'blocks' AND deleted_at IS NULL
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var to string
		if err := rows.Scan(&to); err != nil {
			return nil, err
		}
		ids = append(ids, to)
	}
	return ids, rows.Err()
}
