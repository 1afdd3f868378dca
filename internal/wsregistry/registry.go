package wsregistry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/pmerr"
)

// Sender is the outbound half of a connection actor: the registry
// enqueues encoded frames onto it without knowing anything about the
// socket underneath. C10 provides the concrete implementation.
type Sender interface {
	Send(frame []byte) bool
}

// ConnectionInfo is the registry's record for one live socket.
type ConnectionInfo struct {
	ConnectionID  string
	UserID        string
	TenantID      string
	ConnectedAt   time.Time
	Sender        Sender
	Subscriptions *ClientSubscriptions
}

// Registry is the shared connection map (C6): connection id to
// connection record, plus per-tenant and total admission counters.
// Register and Unregister hold mu while they mutate the maps; readers
// (Get, IterByTenant, the counters) take its read lock. Subscribe and
// Unsubscribe look the record up under the read lock and then change
// its ClientSubscriptions, which is guarded by its own lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*ConnectionInfo
	byTenant    map[string]map[string]struct{}
	limits      config.ConnectionLimits
}

func New(limits config.ConnectionLimits) *Registry {
	return &Registry{
		connections: make(map[string]*ConnectionInfo),
		byTenant:    make(map[string]map[string]struct{}),
		limits:      limits,
	}
}

// Register mints a connection id and inserts a record, rejecting with
// ConnectionLimitExceeded if either the tenant or the global cap is
// already at its limit.
func (r *Registry) Register(userID, tenantID string, sender Sender) (*ConnectionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.connections) >= r.limits.MaxTotal {
		return nil, pmerr.ConnectionLimitExceededErr("global connection limit reached")
	}
	tenantConns := r.byTenant[tenantID]
	if len(tenantConns) >= r.limits.MaxPerTenant {
		return nil, pmerr.ConnectionLimitExceededErr("tenant connection limit reached")
	}

	info := &ConnectionInfo{
		ConnectionID:  uuid.NewString(),
		UserID:        userID,
		TenantID:      tenantID,
		ConnectedAt:   time.Now(),
		Sender:        sender,
		Subscriptions: NewClientSubscriptions(),
	}
	r.connections[info.ConnectionID] = info
	if tenantConns == nil {
		tenantConns = make(map[string]struct{})
		r.byTenant[tenantID] = tenantConns
	}
	tenantConns[info.ConnectionID] = struct{}{}
	return info, nil
}

// Unregister removes a connection. Safe to call more than once; a
// second call is a no-op.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.connections[connectionID]
	if !ok {
		return
	}
	delete(r.connections, connectionID)
	if tenantConns, ok := r.byTenant[info.TenantID]; ok {
		delete(tenantConns, connectionID)
		if len(tenantConns) == 0 {
			delete(r.byTenant, info.TenantID)
		}
	}
}

func (r *Registry) Get(connectionID string) (*ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.connections[connectionID]
	return info, ok
}

// IterByTenant returns a snapshot of every live connection for tenant.
func (r *Registry) IterByTenant(tenantID string) []*ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byTenant[tenantID]
	out := make([]*ConnectionInfo, 0, len(ids))
	for id := range ids {
		if info, ok := r.connections[id]; ok {
			out = append(out, info)
		}
	}
	return out
}

func (r *Registry) Subscribe(connectionID string, projectIDs, sprintIDs, workItemIDs []string) {
	info, ok := r.Get(connectionID)
	if !ok {
		return
	}
	info.Subscriptions.SubscribeProjects(projectIDs)
	info.Subscriptions.SubscribeSprints(sprintIDs)
	info.Subscriptions.SubscribeWorkItems(workItemIDs)
}

func (r *Registry) Unsubscribe(connectionID string, projectIDs, sprintIDs, workItemIDs []string) {
	info, ok := r.Get(connectionID)
	if !ok {
		return
	}
	info.Subscriptions.UnsubscribeProjects(projectIDs)
	info.Subscriptions.UnsubscribeSprints(sprintIDs)
	info.Subscriptions.UnsubscribeWorkItems(workItemIDs)
}

// TenantCount returns the number of live connections for tenant.
func (r *Registry) TenantCount(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTenant[tenantID])
}

// TotalCount returns the number of live connections across all tenants.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
