// Package store is the repository layer: pgx-backed persistence for
// every entity in internal/domain, with the conditional-UPDATE
// optimistic locking primitive (C12's step 4) factored out for reuse
// across Project, WorkItem, and Sprint.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/pmerr"
)

// Store bundles the pool and every entity repository.
type Store struct {
	Pool      *pgxpool.Pool
	Projects  *ProjectRepository
	WorkItems *WorkItemRepository
	Sprints   *SprintRepository
	Comments  *CommentRepository
	Deps      *DependencyRepository
	Time      *TimeEntryRepository
	Activity  *ActivityRepository
	Members   *MemberRepository
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Pool:      pool,
		Projects:  &ProjectRepository{pool: pool},
		WorkItems: &WorkItemRepository{pool: pool},
		Sprints:   &SprintRepository{pool: pool},
		Comments:  &CommentRepository{pool: pool},
		Deps:      &DependencyRepository{pool: pool},
		Time:      &TimeEntryRepository{pool: pool},
		Activity:  &ActivityRepository{pool: pool},
		Members:   &MemberRepository{pool: pool},
	}
}

// versionedUpdate issues a single conditional UPDATE guarded by
// `WHERE id = $id AND version = $expectedVersion AND deleted_at IS
// NULL`, via an already-built query and its argument list (the final
// two positional placeholders for id and expectedVersion are appended
// by the caller). If no row matched, it reloads the current version
// with currentVersion so the caller can return Conflict{current}.
func versionedUpdate(ctx context.Context, pool *pgxpool.Pool, query string, args []any, currentVersion func(context.Context) (int64, error)) error {
	tag, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := currentVersion(ctx)
	if err != nil {
		return err
	}
	return pmerr.ConflictErr(current)
}

func notFoundOnNoRows(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return pmerr.NotFoundErr(msg)
	}
	return err
}
