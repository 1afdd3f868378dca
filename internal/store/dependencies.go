package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
)

type DependencyRepository struct {
	pool *pgxpool.Pool
}

func (r *DependencyRepository) Create(ctx context.Context, d domain.Dependency) (domain.Dependency, error) {
	d.ID = uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dependencies (id, blocking_item_id, blocked_item_id, dependency_type, created_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, d.ID, d.BlockingItemID, d.BlockedItemID, d.DependencyType, d.CreatedAt, d.CreatedBy)
	if err != nil {
		return domain.Dependency{}, err
	}
	return d, nil
}

// Exists reports whether an identical, non-deleted (blocking, blocked,
// type) edge already exists — invariant 3.b.
func (r *DependencyRepository) Exists(ctx context.Context, blockingID, blockedID string, depType domain.DependencyType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM dependencies
			WHERE blocking_item_id = $1 AND blocked_item_id = $2 AND dependency_type = $3
				AND deleted_at IS NULL
		)
	`, blockingID, blockedID, depType).Scan(&exists)
	return exists, err
}

// OutgoingBlocksCount returns the number of non-deleted outgoing
// "blocks" edges from id, checked against MaxOutgoingBlocksEdges.
func (r *DependencyRepository) OutgoingBlocksCount(ctx context.Context, id string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM dependencies
		WHERE blocking_item_id = $1 AND dependency_type = 'blocks' AND deleted_at IS NULL
	`, id).Scan(&n)
	return n, err
}

func (r *DependencyRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]domain.Dependency, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, blocking_item_id, blocked_item_id, dependency_type, created_at, created_by, deleted_at
		FROM dependencies
		WHERE (blocking_item_id = $1 OR blocked_item_id = $1) AND deleted_at IS NULL
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Dependency
	for rows.Next() {
		var d domain.Dependency
		if err := rows.Scan(&d.ID, &d.BlockingItemID, &d.BlockedItemID, &d.DependencyType,
			&d.CreatedAt, &d.CreatedBy, &d.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
