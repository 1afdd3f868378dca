package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
)

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func (r *ProjectRepository) Create(ctx context.Context, p domain.Project) (domain.Project, error) {
	p.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projects (id, key, title, description, status, next_work_item_number, version,
			created_at, updated_at, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, p.ID, p.Key, p.Title, p.Description, p.Status, p.NextWorkItemNumber, p.Version,
		p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy)
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, key, title, description, status, next_work_item_number, version,
			created_at, updated_at, created_by, updated_by, deleted_at
		FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.Key, &p.Title, &p.Description, &p.Status, &p.NextWorkItemNumber,
		&p.Version, &p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy, &p.DeletedAt)
	if err != nil {
		return domain.Project{}, notFoundOnNoRows(err, "project not found")
	}
	if p.IsDeleted() {
		return domain.Project{}, pmerr.NotFoundErr("project not found")
	}
	return p, nil
}

func (r *ProjectRepository) currentVersion(ctx context.Context, id string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		var v int64
		err := r.pool.QueryRow(ctx, `SELECT version FROM projects WHERE id = $1`, id).Scan(&v)
		return v, err
	}
}

// Update applies an already-validated field set under the expected
// version, implementing C12 step 4: the write only lands if the
// stored version still matches expectedVersion.
func (r *ProjectRepository) Update(ctx context.Context, id string, expectedVersion int64, title string, description *string, status domain.ProjectStatus, updatedBy string) error {
	return versionedUpdate(ctx, r.pool, `
		UPDATE projects SET title = $1, description = $2, status = $3, updated_by = $4,
			updated_at = now(), version = version + 1
		WHERE id = $5 AND version = $6 AND deleted_at IS NULL
	`, []any{title, description, status, updatedBy, id, expectedVersion}, r.currentVersion(ctx, id))
}

// NextWorkItemNumber atomically increments and returns the project's
// work-item sequence counter in the same round trip (C12's create path
// for work items allocates item_number this way).
func (r *ProjectRepository) NextWorkItemNumber(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		UPDATE projects SET next_work_item_number = next_work_item_number + 1
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING next_work_item_number - 1
	`, projectID).Scan(&n)
	if err != nil {
		return 0, notFoundOnNoRows(err, "project not found")
	}
	return n, nil
}

func (r *ProjectRepository) SoftDelete(ctx context.Context, id string, expectedVersion int64, updatedBy string) error {
	return versionedUpdate(ctx, r.pool, `
		UPDATE projects SET deleted_at = now(), updated_by = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND deleted_at IS NULL
	`, []any{updatedBy, id, expectedVersion}, r.currentVersion(ctx, id))
}
