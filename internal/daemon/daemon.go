// Package daemon runs the discovery pipeline on a fixed interval as a
// long-lived service.
package daemon

import (
	"context"
	"log/slog"
	"time"

	"podscribe/internal/instance"
	"podscribe/internal/logging"
)

// Runner is the unit of work the service schedules.
type Runner interface {
	DiscoverAndProcess(ctx context.Context) (int, error)
}

// Service owns the instance lock and the interval loop around a Runner.
type Service struct {
	runner   Runner
	interval time.Duration
	lockPath string
	logger   *slog.Logger
}

// New constructs a service. interval is the gap between discovery passes.
func New(runner Runner, interval time.Duration, lockPath string, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		runner:   runner,
		interval: interval,
		lockPath: lockPath,
		logger:   logging.NewComponentLogger(logger, "daemon"),
	}
}

// Run acquires the instance lock, executes one pass immediately, then keeps
// running passes every interval until ctx is cancelled. A failed pass is
// logged and the loop continues; only a lock conflict or cancellation ends
// the service. Run returns nil on clean shutdown.
func (s *Service) Run(ctx context.Context) error {
	guard, err := instance.Acquire(s.lockPath)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := guard.Release(); releaseErr != nil {
			s.logger.Warn("lock release failed", logging.Error(releaseErr))
		}
	}()

	s.logger.Info("service started",
		logging.Duration("check_interval", s.interval),
		logging.String("lock_file", guard.Path()))

	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("service stopping")
			return nil
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Service) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	completed, err := s.runner.DiscoverAndProcess(ctx)
	if err != nil {
		s.logger.Error("discovery pass failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(started)))
		return
	}
	s.logger.Info("discovery pass succeeded",
		logging.Int("completed_count", completed),
		logging.Duration("elapsed", time.Since(started)))
}
