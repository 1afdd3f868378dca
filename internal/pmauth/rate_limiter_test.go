package pmauth

import (
	"testing"

	"github.com/pmsync/pmsync/internal/pmerr"
)

func TestConnectionRateLimiter_AllowsUpToBurstThenRejects(t *testing.T) {
	l := NewConnectionRateLimiter(5, 60)

	for i := 0; i < 5; i++ {
		if err := l.Check(); err != nil {
			t.Fatalf("request %d: expected allow, got %v", i, err)
		}
	}

	err := l.Check()
	if err == nil {
		t.Fatalf("expected 6th request to be rejected")
	}
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.RateLimited {
		t.Fatalf("expected RateLimited kind, got %v", err)
	}
}

func TestConnectionRateLimiter_IndependentPerInstance(t *testing.T) {
	a := NewConnectionRateLimiter(1, 60)
	b := NewConnectionRateLimiter(1, 60)

	if err := a.Check(); err != nil {
		t.Fatalf("a: unexpected error: %v", err)
	}
	if err := a.Check(); err == nil {
		t.Fatalf("a: expected second request to be rejected")
	}
	if err := b.Check(); err != nil {
		t.Fatalf("b should be unaffected by a's consumption: %v", err)
	}
}
