package pmauth

import (
	"sync"
	"time"

	"github.com/pmsync/pmsync/internal/pmerr"
)

// ConnectionRateLimiter is a single token bucket scoped to exactly one
// WebSocket connection actor (C10) — it is minted once when the actor
// starts and discarded when the actor exits, unlike a shared per-user map.
type ConnectionRateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	maxRequests int
	windowSecs  int64
}

// NewConnectionRateLimiter builds a limiter refilling at
// maxRequests/windowSecs tokens per second, bucket capacity maxRequests.
func NewConnectionRateLimiter(maxRequests int, windowSecs int64) *ConnectionRateLimiter {
	if windowSecs <= 0 {
		windowSecs = 1
	}
	return &ConnectionRateLimiter{
		tokens:      float64(maxRequests),
		capacity:    float64(maxRequests),
		refillRate:  float64(maxRequests) / float64(windowSecs),
		lastRefill:  time.Now(),
		maxRequests: maxRequests,
		windowSecs:  windowSecs,
	}
}

// Check is synchronous and non-blocking: it either consumes one token and
// returns nil, or returns a RateLimited error without blocking the
// caller's read loop.
func (l *ConnectionRateLimiter) Check() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return nil
	}
	return pmerr.RateLimitedErr(l.maxRequests, l.windowSecs)
}
