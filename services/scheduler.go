// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartStatsScheduler runs the periodic recompute of stale profile stats.
func (s *ProfileService) StartStatsScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: refresh stats rows that imports or reverts flagged.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			defer cancel()

			done, err := s.RecomputeStale(ctx)
			if err != nil {
				s.Logger.Error("stale stats sweep failed", zap.Error(err))
				return
			}
			if done > 0 {
				s.Logger.Info("recomputed stale profile stats", zap.Int("rows", done))
			}
		}),
	)
}
