package core

// scheduler.go runs configured jobs on a fixed interval.
//
// Each tick runs the jobs one after another. A failing job is logged and
// the next one still runs; a tick that finds the limiter busy skips that
// job instead of queueing it.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ScheduleConfig holds configuration for the sync scheduler.
type ScheduleConfig struct {
	Jobs       []string      // Job keys, run in this order
	Interval   time.Duration // How often to run (0 disables the scheduler)
	RunOnStart bool          // Run once immediately before the first tick
}

// StartScheduler runs cfg.Jobs every cfg.Interval until ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context, cfg ScheduleConfig) {
	if cfg.Interval <= 0 || len(cfg.Jobs) == 0 {
		slog.Info("sync scheduler disabled")
		return
	}
	slog.Info("sync scheduler started",
		"jobs", cfg.Jobs,
		"interval", cfg.Interval.String(),
	)

	if cfg.RunOnStart {
		s.runScheduled(ctx, cfg.Jobs)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx, cfg.Jobs)
		}
	}
}

// runScheduled performs one pass over jobs.
func (s *Service) runScheduled(ctx context.Context, jobs []string) {
	start := time.Now()
	ctx = ContextWithTrigger(ctx, TriggerSchedule)

	for _, key := range jobs {
		if ctx.Err() != nil {
			return
		}
		report, err := s.RunJob(ctx, key)
		switch {
		case errors.Is(err, ErrRunInProgress):
			slog.Warn("scheduled run skipped, another sync is running", "job", key)
		case err != nil:
			slog.Error("scheduled run failed", "job", key, "error", err)
		default:
			slog.Info("scheduled run finished",
				"job", key,
				"status", report.Status,
				"cells_written", report.CellsWritten,
			)
		}
	}

	slog.Info("scheduled pass completed", "duration_ms", time.Since(start).Milliseconds())
}
