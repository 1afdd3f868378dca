package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmsync/pmsync/internal/domain"
)

type MemberRepository struct {
	pool *pgxpool.Pool
}

// RoleOf returns the caller's role on a project, or ("", false) if
// they are not a member — the mutators treat "not a member" as no
// permissions granted at all.
func (r *MemberRepository) RoleOf(ctx context.Context, projectID, userID string) (domain.Role, bool, error) {
	var role domain.Role
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2
	`, projectID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (r *MemberRepository) Add(ctx context.Context, m domain.ProjectMember) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = $3
	`, m.ProjectID, m.UserID, m.Role)
	return err
}
