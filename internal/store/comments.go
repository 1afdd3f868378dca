package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
)

type CommentRepository struct {
	pool *pgxpool.Pool
}

func (r *CommentRepository) Create(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	c.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO comments (id, work_item_id, project_id, author_id, body, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.WorkItemID, c.ProjectID, c.AuthorID, c.Body, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (r *CommentRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]domain.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, work_item_id, project_id, author_id, body, version, created_at, updated_at, deleted_at
		FROM comments WHERE work_item_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.WorkItemID, &c.ProjectID, &c.AuthorID, &c.Body, &c.Version,
			&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
