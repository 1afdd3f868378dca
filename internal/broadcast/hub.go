// Package broadcast implements the tenant broadcaster (C8): a
// per-tenant bounded multi-producer/multi-subscriber channel that fans
// published events out to every live receiver, dropping for receivers
// that fall behind rather than blocking the publisher.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/config"
)

// Event is a pre-serialized wire frame annotated with the routing ids
// the subscription filter (C7) needs to decide, on the receiving side,
// whether the frame is of interest. Serializing once here and fanning
// out the same byte slice to every receiver avoids re-marshaling per
// subscriber.
type Event struct {
	ProjectID  string
	SprintID   string
	WorkItemID string
	Frame      []byte
}

// Receiver is the subscriber handle returned by Subscribe. Close
// releases it: decrementing the tenant's refcount and, if it reaches
// zero, tearing down the tenant's channel.
type Receiver struct {
	C       <-chan Event
	release func()
	once    sync.Once
}

func (r *Receiver) Close() {
	r.once.Do(r.release)
}

type tenantTopic struct {
	mu          sync.Mutex
	subscribers map[int64]chan Event
	nextID      int64
}

// Hub owns every tenant's topic. It is safe for concurrent use by many
// publishers and many subscribers.
type Hub struct {
	mu       sync.Mutex
	topics   map[string]*tenantTopic
	capacity int
	log      zerolog.Logger
}

func New(cfg config.BroadcastConfig, log zerolog.Logger) *Hub {
	capacity := cfg.ChannelCapacity
	if capacity <= 0 {
		capacity = 1000
	}
	return &Hub{
		topics:   make(map[string]*tenantTopic),
		capacity: capacity,
		log:      log,
	}
}

// Subscribe increments the tenant's refcount, creating the topic if
// absent, and returns a receiver handle.
func (h *Hub) Subscribe(tenantID string) *Receiver {
	h.mu.Lock()
	topic, ok := h.topics[tenantID]
	if !ok {
		topic = &tenantTopic{subscribers: make(map[int64]chan Event)}
		h.topics[tenantID] = topic
	}
	h.mu.Unlock()

	topic.mu.Lock()
	id := topic.nextID
	topic.nextID++
	ch := make(chan Event, h.capacity)
	topic.subscribers[id] = ch
	topic.mu.Unlock()

	return &Receiver{
		C: ch,
		release: func() {
			h.unsubscribe(tenantID, topic, id)
		},
	}
}

func (h *Hub) unsubscribe(tenantID string, topic *tenantTopic, id int64) {
	topic.mu.Lock()
	delete(topic.subscribers, id)
	empty := len(topic.subscribers) == 0
	topic.mu.Unlock()

	if !empty {
		return
	}
	h.mu.Lock()
	// Re-check under the hub lock: a concurrent Subscribe may have
	// added a new subscriber between the unlock above and here.
	if current, ok := h.topics[tenantID]; ok && current == topic {
		topic.mu.Lock()
		stillEmpty := len(topic.subscribers) == 0
		topic.mu.Unlock()
		if stillEmpty {
			delete(h.topics, tenantID)
		}
	}
	h.mu.Unlock()
}

// Publish delivers event to every live receiver of tenantID. A
// receiver whose buffer is full is lossy-dropped rather than blocking
// the publisher; the caller's own event is never lost for other,
// faster receivers. Publish never blocks beyond an O(subscribers)
// enqueue loop.
func (h *Hub) Publish(tenantID string, event Event) {
	h.mu.Lock()
	topic, ok := h.topics[tenantID]
	h.mu.Unlock()
	if !ok {
		return
	}

	topic.mu.Lock()
	receivers := make([]chan Event, 0, len(topic.subscribers))
	for _, ch := range topic.subscribers {
		receivers = append(receivers, ch)
	}
	topic.mu.Unlock()

	for _, ch := range receivers {
		select {
		case ch <- event:
		default:
			h.log.Warn().Str("tenant_id", tenantID).Msg("broadcast receiver lagging, dropping event")
		}
	}
}

// TenantCount reports the number of live subscribers for a tenant
// (0 if the tenant has no topic), used by tests and metrics.
func (h *Hub) TenantCount(tenantID string) int {
	h.mu.Lock()
	topic, ok := h.topics[tenantID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	topic.mu.Lock()
	defer topic.mu.Unlock()
	return len(topic.subscribers)
}
