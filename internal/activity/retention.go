package activity

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/store"
)

// RetentionSweeper periodically purges activity log rows older than the
// configured retention window. One sweeper runs per process; it is
// started once at startup and stops when ctx is cancelled.
type RetentionSweeper struct {
	repo *store.ActivityRepository
	cfg  config.ActivityLogConfig
}

func NewRetentionSweeper(repo *store.ActivityRepository, cfg config.ActivityLogConfig) *RetentionSweeper {
	return &RetentionSweeper{repo: repo, cfg: cfg}
}

// Start runs the sweep loop in its own goroutine and returns immediately.
func (s *RetentionSweeper) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.CleanupIntervalHrs) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

func (s *RetentionSweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	purged, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("activity log retention sweep failed")
		return
	}
	if purged > 0 {
		log.Info().Int64("rows_purged", purged).Msg("activity log retention sweep completed")
	}
}
