package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

// Scheduler runs SweepOnce on a cron schedule. A run still in progress when the
// next tick fires makes that tick skip.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	clock   clock.Clock
	log     *slog.Logger
}

func NewScheduler(sweeper *Sweeper, schedule string, clk clock.Clock, log *slog.Logger) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		sweeper: sweeper,
		clock:   clk,
		log:     log.With("module", "sweep_scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule sweep %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if _, err := s.sweeper.SweepOnce(ctx, s.clock.Now()); err != nil {
		s.log.LogAttrs(ctx,
			slog.LevelError,
			"scheduled sweep failed",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.LogAttrs(context.Background(), slog.LevelInfo, "sweep scheduler started")
}

// Stop prevents new runs and waits for a running sweep until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err() //nolint: wrapcheck // context error
	}
}
