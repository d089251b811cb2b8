/**
 * Retention Scheduler.
 *
 * Runs Store.CleanupOldData once a day, the third periodic worker
 * alongside the flow engine's idle sweeper and batch writer.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kleaSCM/sentinel/internal/storage"
)

const tickInterval = 24 * time.Hour

// Scheduler triggers Store.CleanupOldData(retentionDays) once per day
// until its context is canceled.
type Scheduler struct {
	store         storage.Storage
	retentionDays int
	log           *zap.Logger
}

func New(store storage.Storage, retentionDays int, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{store: store, retentionDays: retentionDays, log: log}
}

// Run blocks, ticking once a day, until ctx is canceled. Callers run it
// in its own goroutine; it is idempotent to call CleanupOldData
// repeatedly since a purge of already-clean data simply deletes zero
// rows.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	flowsDeleted, threatsDeleted, err := s.store.CleanupOldData(ctx, s.retentionDays)
	if err != nil {
		s.log.Error("retention cleanup failed", zap.Error(err))
		return
	}
	s.log.Info("retention cleanup complete",
		zap.Int64("flows_deleted", flowsDeleted),
		zap.Int64("threats_deleted", threatsDeleted),
		zap.Int("retention_days", s.retentionDays))
}
