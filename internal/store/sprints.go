package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
)

type SprintRepository struct {
	pool *pgxpool.Pool
}

func (r *SprintRepository) Create(ctx context.Context, s domain.Sprint) (domain.Sprint, error) {
	s.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sprints (id, project_id, name, goal, start_date, end_date, status, version,
			created_at, updated_at, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.ID, s.ProjectID, s.Name, s.Goal, s.StartDate, s.EndDate, s.Status, s.Version,
		s.CreatedAt, s.UpdatedAt, s.CreatedBy, s.UpdatedBy)
	if err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

func (r *SprintRepository) Get(ctx context.Context, id string) (domain.Sprint, error) {
	var s domain.Sprint
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, name, goal, start_date, end_date, status, version,
			created_at, updated_at, created_by, updated_by, deleted_at
		FROM sprints WHERE id = $1
	`, id).Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.StartDate, &s.EndDate, &s.Status,
		&s.Version, &s.CreatedAt, &s.UpdatedAt, &s.CreatedBy, &s.UpdatedBy, &s.DeletedAt)
	if err != nil {
		return domain.Sprint{}, notFoundOnNoRows(err, "sprint not found")
	}
	if s.IsDeleted() {
		return domain.Sprint{}, pmerr.NotFoundErr("sprint not found")
	}
	return s, nil
}

func (r *SprintRepository) currentVersion(ctx context.Context, id string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		var v int64
		err := r.pool.QueryRow(ctx, `SELECT version FROM sprints WHERE id = $1`, id).Scan(&v)
		return v, err
	}
}

func (r *SprintRepository) Update(ctx context.Context, id string, expectedVersion int64, s domain.Sprint) error {
	return versionedUpdate(ctx, r.pool, `
		UPDATE sprints SET name = $1, goal = $2, start_date = $3, end_date = $4, status = $5,
			updated_by = $6, updated_at = now(), version = version + 1
		WHERE id = $7 AND version = $8 AND deleted_at IS NULL
	`, []any{s.Name, s.Goal, s.StartDate, s.EndDate, s.Status, s.UpdatedBy, id, expectedVersion},
		r.currentVersion(ctx, id))
}

func (r *SprintRepository) SoftDelete(ctx context.Context, id string, expectedVersion int64, updatedBy string) error {
	return versionedUpdate(ctx, r.pool, `
		UPDATE sprints SET deleted_at = now(), updated_by = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND deleted_at IS NULL
	`, []any{updatedBy, id, expectedVersion}, r.currentVersion(ctx, id))
}
