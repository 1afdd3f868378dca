// Package wsregistry implements the connection registry (C6) and
// subscription filter (C7): the shared map from connection id to
// connection record, and the pure predicates that decide whether a
// broadcast event reaches a given connection.
package wsregistry

import "sync"

// ClientSubscriptions tracks the three disjoint interest sets of a
// connection: projects, sprints, and individually-subscribed work
// items. Subscribing to a project implicitly covers everything under
// it; the work-item set exists for clients that want a narrower feed.
type ClientSubscriptions struct {
	mu        sync.RWMutex
	projects  map[string]struct{}
	sprints   map[string]struct{}
	workItems map[string]struct{}
}

func NewClientSubscriptions() *ClientSubscriptions {
	return &ClientSubscriptions{
		projects:  make(map[string]struct{}),
		sprints:   make(map[string]struct{}),
		workItems: make(map[string]struct{}),
	}
}

func (s *ClientSubscriptions) SubscribeProjects(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.projects[id] = struct{}{}
	}
}

func (s *ClientSubscriptions) UnsubscribeProjects(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.projects, id)
	}
}

func (s *ClientSubscriptions) SubscribeSprints(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.sprints[id] = struct{}{}
	}
}

func (s *ClientSubscriptions) UnsubscribeSprints(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.sprints, id)
	}
}

func (s *ClientSubscriptions) SubscribeWorkItems(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.workItems[id] = struct{}{}
	}
}

func (s *ClientSubscriptions) UnsubscribeWorkItems(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.workItems, id)
	}
}

func (s *ClientSubscriptions) IsSubscribedToProject(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.projects[id]
	return ok
}

func (s *ClientSubscriptions) IsSubscribedToSprint(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sprints[id]
	return ok
}

func (s *ClientSubscriptions) IsSubscribedToWorkItem(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workItems[id]
	return ok
}

// TotalCount returns the sum of all three interest sets, used for
// metrics and debugging.
func (s *ClientSubscriptions) TotalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects) + len(s.sprints) + len(s.workItems)
}

// Filter is the pure C7 predicate set. It takes no lock of its own;
// all synchronization lives in ClientSubscriptions.
type Filter struct{}

func (Filter) ShouldReceiveWorkItemEvent(subs *ClientSubscriptions, projectID, workItemID string) bool {
	return subs.IsSubscribedToProject(projectID) || subs.IsSubscribedToWorkItem(workItemID)
}

func (Filter) ShouldReceiveSprintEvent(subs *ClientSubscriptions, projectID, sprintID string) bool {
	return subs.IsSubscribedToProject(projectID) || subs.IsSubscribedToSprint(sprintID)
}

func (f Filter) ShouldReceiveCommentEvent(subs *ClientSubscriptions, projectID, workItemID string) bool {
	return f.ShouldReceiveWorkItemEvent(subs, projectID, workItemID)
}
