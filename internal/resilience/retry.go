package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pmsync/pmsync/internal/config"
)

// TransientError marks a database failure as retryable (connection loss,
// timeout, serialization conflict). Any other error — in particular the
// pmerr kinds that represent a client mistake — is returned as-is and
// never retried, per 4.4.
type TransientError struct {
	cause error
}

func (t *TransientError) Error() string { return t.cause.Error() }
func (t *TransientError) Unwrap() error { return t.cause }

// Transient wraps err so the retry engine treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{cause: err}
}

// isRetryable is true only for errors explicitly marked Transient.
// Everything else — including every classified pmerr kind (validation,
// not-found, unauthorized, conflict) — is a permanent outcome per 4.4.
func isRetryable(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Retrier applies the exponential-backoff-with-jitter schedule from 4.4
// to idempotent reads only. Construct one per logical operation class
// (or reuse across reads sharing the same retry policy).
type Retrier struct {
	cfg config.RetryConfig
}

func NewRetrier(cfg config.RetryConfig) *Retrier {
	return &Retrier{cfg: cfg}
}

func (r *Retrier) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(r.cfg.InitialDelayMs) * time.Millisecond
	b.MaxInterval = time.Duration(r.cfg.MaxDelaySecs) * time.Second
	b.Multiplier = r.cfg.BackoffMultiplier
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall-clock
	if r.cfg.Jitter {
		b.RandomizationFactor = 0.5 // actual sleep in [0.5*d, 1.5*d]
	} else {
		b.RandomizationFactor = 0
	}
	return backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1))
}

// Do runs fn, retrying on transient failures per the configured
// schedule. A non-transient error returns immediately without consuming
// any retry budget.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(r.newBackOff(), ctx))
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	var t *TransientError
	if errors.As(lastErr, &t) {
		return t.Unwrap()
	}
	return lastErr
}
