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

// maxCycleCheckTraversal bounds the breadth-first cycle search at a
// hard project-wide node count, on top of the 50-edge per-item limit,
// so a pathological graph cannot make dependency creation unbounded.
const maxCycleCheckTraversal = 5000

type DependencyMutator struct {
	store    *store.Store
	activity *activity.Recorder
	hub      *broadcast.Hub
}

func NewDependencyMutator(s *store.Store, rec *activity.Recorder, hub *broadcast.Hub) *DependencyMutator {
	return &DependencyMutator{store: s, activity: rec, hub: hub}
}

func (m *DependencyMutator) Create(ctx context.Context, tenantID, userID string, req wire.CreateDependencyRequest) (domain.Dependency, error) {
	if req.BlockingItemID == req.BlockedItemID {
		return domain.Dependency{}, pmerr.ValidationErr("blocked_item_id", "a work item cannot depend on itself")
	}
	depType, ok := domain.ParseDependencyType(req.DependencyType)
	if !ok {
		return domain.Dependency{}, pmerr.ValidationErr("dependency_type", "unknown dependency type")
	}

	blocking, err := m.store.WorkItems.Get(ctx, req.BlockingItemID)
	if err != nil {
		return domain.Dependency{}, err
	}
	blocked, err := m.store.WorkItems.Get(ctx, req.BlockedItemID)
	if err != nil {
		return domain.Dependency{}, err
	}
	if blocking.ProjectID != blocked.ProjectID {
		return domain.Dependency{}, pmerr.ValidationErr("blocked_item_id", "dependency endpoints must be in the same project")
	}
	if err := authorize(ctx, m.store.Members, blocking.ProjectID, userID, domain.PermissionWrite); err != nil {
		return domain.Dependency{}, err
	}

	exists, err := m.store.Deps.Exists(ctx, req.BlockingItemID, req.BlockedItemID, depType)
	if err != nil {
		return domain.Dependency{}, err
	}
	if exists {
		return domain.Dependency{}, pmerr.ValidationErr("blocked_item_id", "this dependency already exists")
	}

	if depType == domain.DependencyBlocks {
		count, err := m.store.Deps.OutgoingBlocksCount(ctx, req.BlockingItemID)
		if err != nil {
			return domain.Dependency{}, err
		}
		if count >= domain.MaxOutgoingBlocksEdges {
			return domain.Dependency{}, pmerr.ValidationErr("blocking_item_id", "outgoing blocks edge limit reached")
		}

		cyclic, err := m.wouldCycle(ctx, req.BlockingItemID, req.BlockedItemID)
		if err != nil {
			return domain.Dependency{}, err
		}
		if cyclic {
			return domain.Dependency{}, pmerr.ValidationErr("blocked_item_id", "this dependency would create a cycle")
		}
	}

	d := domain.NewDependency(req.BlockingItemID, req.BlockedItemID, depType, userID)
	created, err := m.store.Deps.Create(ctx, d)
	if err != nil {
		return domain.Dependency{}, err
	}

	// The activity log insert below triggers its own broadcast (C13's
	// last sentence); a dependency has no dedicated event type of its
	// own, so that audit event is what live clients observe.
	if err := m.activity.RecordCreated(ctx, tenantID, "dependency", created.ID, userID,
		activity.Route{ProjectID: blocking.ProjectID, WorkItemID: created.BlockingItemID}); err != nil {
		return domain.Dependency{}, pmerr.InternalErr(err)
	}
	return created, nil
}

// wouldCycle traverses outgoing `blocks` edges breadth-first from
// blockedID (b_to); if blockingID (b_from) is reached, inserting the
// new edge would close a cycle.
func (m *DependencyMutator) wouldCycle(ctx context.Context, blockingID, blockedID string) (bool, error) {
	visited := map[string]bool{blockedID: true}
	queue := []string{blockedID}
	visitedCount := 0

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visitedCount++
		if visitedCount > maxCycleCheckTraversal {
			return true, nil // fail closed: treat an unbounded graph as cyclic
		}

		next, err := m.store.WorkItems.OutgoingBlocks(ctx, node)
		if err != nil {
			return false, err
		}
		for _, n := range next {
			if n == blockingID {
				return true, nil
			}
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false, nil
}
