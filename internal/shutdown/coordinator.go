// Package shutdown implements the shutdown coordinator (C9): a single
// fan-out signal with RAII-style subscription guards, translating the
// original broadcast-channel design into Go's closed-channel idiom.
package shutdown

import (
	"sync"
	"sync/atomic"
)

// Coordinator fans a single shutdown signal out to every subscriber.
// Shutdown is idempotent: repeated calls are no-ops, matching a
// broadcast sender that can be signalled more than once safely.
type Coordinator struct {
	once    sync.Once
	done    chan struct{}
	holders int64
}

func New() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// Subscribe returns a Guard. The coordinator counts it as a live
// holder until the guard is released.
func (c *Coordinator) Subscribe() *Guard {
	atomic.AddInt64(&c.holders, 1)
	return &Guard{coordinator: c}
}

// Shutdown fans the signal out to every current and future holder.
// Safe to call more than once; only the first call has an effect.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() { close(c.done) })
}

// IsShutdown reports whether Shutdown has been called.
func (c *Coordinator) IsShutdown() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// HolderCount returns the number of guards currently outstanding, used
// by the supervisor to know when every C10 actor has drained.
func (c *Coordinator) HolderCount() int64 {
	return atomic.LoadInt64(&c.holders)
}

// Guard is the RAII-style subscription handle. A holder selects on
// C() alongside its normal work; on signal it begins an orderly close
// and then releases the guard.
type Guard struct {
	coordinator *Coordinator
	released    int32
}

// C returns the channel that closes when shutdown is signalled. It is
// safe to read from multiple goroutines and multiple times.
func (g *Guard) C() <-chan struct{} {
	return g.coordinator.done
}

// Release decrements the coordinator's holder count. Safe to call more
// than once; only the first call has an effect.
func (g *Guard) Release() {
	if atomic.CompareAndSwapInt32(&g.released, 0, 1) {
		atomic.AddInt64(&g.coordinator.holders, -1)
	}
}
