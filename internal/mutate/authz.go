// Package mutate implements the optimistic-lock mutators (C12): the
// versioned update and hierarchy-validated create paths for every
// mutable entity, wired to the change tracker and activity log (C13)
// and the tenant broadcaster (C8).
package mutate

import (
	"context"

	"github.com/pmsync/pmsync/internal/domain"
	"github.com/pmsync/pmsync/internal/pmerr"
	"github.com/pmsync/pmsync/internal/store"
)

// authorize fails with Unauthorized unless the caller is a member of
// projectID holding at least perm. Non-members carry no permissions.
func authorize(ctx context.Context, members *store.MemberRepository, projectID, userID string, perm domain.Permission) error {
	role, ok, err := members.RoleOf(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !ok || !role.Grants(perm) {
		return pmerr.UnauthorizedErr("caller lacks the required project permission")
	}
	return nil
}
