// Package idempotency implements the idempotency cache (C5): a
// Postgres-backed table keyed by message_id, with insert-if-absent
// acquisition so two concurrent attempts bearing the same id converge
// on one cached result.
package idempotency

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pmsync/pmsync/internal/config"
)

// staleAfter is how long a pending key is left alone before a
// follow-up attempt is allowed to reclaim it, matching the
// crashed-request allowance the original handler applies.
const staleAfter = time.Minute

// Store is the idempotency cache.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
	log       zerolog.Logger
}

func New(pool *pgxpool.Pool, cfg config.IdempotencyConfig, log zerolog.Logger) *Store {
	return &Store{
		pool:      pool,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
		log:       log,
	}
}

// Find looks up a cached result frame for message_id. It returns
// (nil, false) on a cache miss, including when the stored payload
// fails to base64-decode — a decoding failure is treated as a miss
// with a logged warning, never a hard error.
func (s *Store) Find(ctx context.Context, messageID string) ([]byte, bool, error) {
	var payloadB64 string
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT payload, status FROM idempotency_cache WHERE message_id = $1`,
		messageID,
	).Scan(&payloadB64, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if status == "pending" {
		if recent, err := s.isRecentlyPending(ctx, messageID); err != nil {
			return nil, false, err
		} else if recent {
			return nil, false, nil
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("idempotency cache payload failed to decode, treating as miss")
		return nil, false, nil
	}
	return decoded, true, nil
}

func (s *Store) isRecentlyPending(ctx context.Context, messageID string) (bool, error) {
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT updated_at FROM idempotency_cache WHERE message_id = $1`, messageID,
	).Scan(&updatedAt)
	if err != nil {
		return false, err
	}
	return time.Since(updatedAt) <= staleAfter, nil
}

// Acquire registers message_id as pending (or no-ops if already held)
// so the dispatcher can tell a fresh request from a replay before the
// handler runs. Returns true if this call won the race and should
// proceed to execute the handler.
func (s *Store) Acquire(ctx context.Context, messageID, operation string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_cache (message_id, operation, status, payload, created_at, updated_at)
		VALUES ($1, $2, 'pending', '', $3, $3)
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, operation, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Someone already holds the key; reclaim it if stale.
	recent, err := s.isRecentlyPending(ctx, messageID)
	if err != nil {
		return false, err
	}
	if recent {
		return false, nil
	}
	res, err := s.pool.Exec(ctx, `
		UPDATE idempotency_cache SET operation = $1, updated_at = $2
		WHERE message_id = $3 AND status = 'pending'
	`, operation, now, messageID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

// Complete stores the final result payload for message_id, base64
// encoding it for storage.
func (s *Store) Complete(ctx context.Context, messageID string, payload []byte) error {
	encoded := base64.StdEncoding.EncodeToString(payload)
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_cache SET status = 'complete', payload = $1, updated_at = $2
		WHERE message_id = $3
	`, encoded, time.Now().UTC(), messageID)
	return err
}

// CleanupExpired deletes entries older than the configured retention
// window, returning the number of rows removed.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_cache WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
