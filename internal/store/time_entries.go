package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
)

type TimeEntryRepository struct {
	pool *pgxpool.Pool
}

func (r *TimeEntryRepository) Create(ctx context.Context, t domain.TimeEntry) (domain.TimeEntry, error) {
	t.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO time_entries (id, work_item_id, project_id, user_id, minutes, note, logged_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.WorkItemID, t.ProjectID, t.UserID, t.Minutes, t.Note, t.LoggedAt, t.CreatedAt)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return t, nil
}

func (r *TimeEntryRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]domain.TimeEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, work_item_id, project_id, user_id, minutes, note, logged_at, created_at, deleted_at
		FROM time_entries WHERE work_item_id = $1 AND deleted_at IS NULL ORDER BY logged_at ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimeEntry
	for rows.Next() {
		var t domain.TimeEntry
		if err := rows.Scan(&t.ID, &t.WorkItemID, &t.ProjectID, &t.UserID, &t.Minutes, &t.Note,
			&t.LoggedAt, &t.CreatedAt, &t.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
