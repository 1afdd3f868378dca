// Package resilience wraps the database access layer with a tri-state
// circuit breaker (C3) and an exponential-backoff retry engine (C4).
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/pmerr"
)

// Breaker wraps sony/gobreaker's CircuitBreaker with the
// Closed/Open/HalfOpen parameterization from 4.3: it trips after
// failure_threshold consecutive failures, stays open for a fixed open
// duration, and closes again after the half-open success threshold.
// While closed, the failure counts are cleared every failure_window
// (gobreaker's Interval); this is a fixed period, not a sliding window.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

// NewBreaker builds a Breaker named after the repository/operation it
// guards (used only for log labeling).
func NewBreaker(name string, cfg config.CircuitBreakerConfig) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenSuccessThresh),
		Interval:    time.Duration(cfg.FailureWindowSecs) * time.Second,
		Timeout:     time.Duration(cfg.OpenDurationSecs) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st), name: name}
}

// Do executes fn through the breaker. When the breaker is open, fn is
// never invoked and a CircuitOpen error is returned immediately — the
// defining no-DB-call property of 4.3 and testable property #4.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pmerr.CircuitOpenErr()
	}
	return err
}

// State reports the breaker's current tri-state for metrics/admin
// snapshots without invoking any call.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
