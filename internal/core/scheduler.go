package core

// scheduler.go rebuilds report tables in the background.
//
// With Flatten.ScheduleInterval set, every registered report is rebuilt on
// each tick, one after another. A tick that finds a run already holding the
// slot skips that report and logs it; the next tick tries again. The
// scheduler stops when its context ends.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// StartScheduler runs scheduled rebuilds until ctx ends. It returns at once
// when no interval is configured and RunOnStart is off.
func (s *Service) StartScheduler(ctx context.Context) {
	interval := s.cfg.Flatten.ScheduleInterval
	if interval <= 0 && !s.cfg.Flatten.RunOnStart {
		return
	}

	slog.Info("report scheduler started",
		"interval", interval,
		"run_on_start", s.cfg.Flatten.RunOnStart,
	)

	if s.cfg.Flatten.RunOnStart {
		s.runScheduled(ctx)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("report scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

// runScheduled rebuilds every registered report once.
func (s *Service) runScheduled(ctx context.Context) {
	start := time.Now()
	ctx = WithRequester(ctx, Requester{IP: "scheduler"})

	for _, def := range All() {
		if ctx.Err() != nil {
			return
		}
		key := def.Info.Key

		result, err := s.RunSync(ctx, key)
		switch {
		case errors.Is(err, ErrRunInProgress):
			slog.Warn("scheduled run skipped, another run is active", "table", key)
		case err != nil:
			slog.Error("scheduled run failed to start", "table", key, "error", err)
		case !result.Success:
			slog.Error("scheduled run failed", "table", key, "run_id", result.RunID, "error", result.Error)
		default:
			slog.Info("scheduled run completed", "table", key, "run_id", result.RunID, "rows", result.Rows)
		}
	}

	slog.Debug("scheduled rebuild finished", "duration_ms", time.Since(start).Milliseconds())
}
