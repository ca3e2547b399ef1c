package nonce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// sweepParser supports standard 5-field cron and descriptors like
// "@every 60s".
var sweepParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// SweepTask is extra maintenance run on every sweep tick, before the
// nonce cleanup. Errors are logged, not fatal to the sweep.
type SweepTask func(ctx context.Context) error

// Sweeper runs Manager.Cleanup on a cron schedule.
type Sweeper struct {
	manager  *Manager
	schedule string
	limit    int
	timeout  time.Duration
	tasks    []SweepTask
	logger   *slog.Logger

	cron *cronlib.Cron
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepTask registers extra maintenance to run each tick, ahead of
// the nonce cleanup so work it unblocks is reclaimed in the same sweep.
func WithSweepTask(task SweepTask) SweeperOption {
	return func(s *Sweeper) { s.tasks = append(s.tasks, task) }
}

// WithSweepLimit caps how many accounts one sweep may reclaim.
// Defaults to 5.
func WithSweepLimit(limit int) SweeperOption {
	return func(s *Sweeper) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithSweepTimeout bounds a single sweep. Defaults to 55s so a slow
// sweep cannot overlap the next tick of the default schedule.
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSweeperLogger sets the sweeper's logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

// NewSweeper creates a sweeper for the given schedule expression, e.g.
// "@every 60s".
func NewSweeper(manager *Manager, schedule string, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		manager:  manager,
		schedule: schedule,
		limit:    5,
		timeout:  55 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the schedule and begins sweeping.
func (s *Sweeper) Start() error {
	if _, err := sweepParser.Parse(s.schedule); err != nil {
		return fmt.Errorf("flowrge/nonce: bad sweep schedule %q: %w", s.schedule, err)
	}
	s.cron = cronlib.New(cronlib.WithParser(sweepParser))
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("flowrge/nonce: register sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("nonce sweeper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("nonce sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	for _, task := range s.tasks {
		if err := task(ctx); err != nil {
			s.logger.Error("sweep task failed", slog.String("error", err.Error()))
		}
	}

	closed, err := s.manager.Cleanup(ctx, s.limit)
	if err != nil {
		s.logger.Error("nonce sweep failed", slog.String("error", err.Error()))
		return
	}
	if closed > 0 {
		s.logger.Info("nonce sweep reclaimed accounts", slog.Int("closed", closed))
	}
}
