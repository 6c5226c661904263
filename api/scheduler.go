/*
scheduler.go - Expired proposal sweeper

PURPOSE:
  Periodically purges staged proposals and batches whose TTL has passed.
  Reads already treat expired entries as absent; the sweep only reclaims
  storage so abandoned proposals do not pile up.

DESIGN:
  - robfig/cron schedule, "@every 1m" by default
  - Runs once immediately on Start
  - A sweep that fails is logged and retried on the next tick

USAGE:
  sweeper := NewPendingSweeper(machine, "@every 1m", logger)
  if err := sweeper.Start(); err != nil { ... }
  // ... later
  sweeper.Stop()

SEE ALSO:
  - confirm/machine.go: PurgeExpired
  - store/mongo: TTL index that expires entries server-side as well
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/ledger-engine/logctx"
)

// DefaultSweepSchedule runs the sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// sweepTimeout bounds one purge.
const sweepTimeout = 30 * time.Second

// Purger removes expired pending entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// PendingSweeper runs Purger on a cron schedule.
type PendingSweeper struct {
	Purger   Purger
	Schedule string
	Enabled  bool

	logger *slog.Logger
	cron   *cron.Cron
	mu     sync.Mutex
}

// NewPendingSweeper creates an enabled sweeper. An empty schedule means
// DefaultSweepSchedule.
func NewPendingSweeper(p Purger, schedule string, logger *slog.Logger) *PendingSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingSweeper{
		Purger:   p,
		Schedule: schedule,
		Enabled:  true,
		logger:   logger,
	}
}

// Start registers the sweep and starts the cron runner.
func (s *PendingSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("pending sweeper disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.Schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.Schedule, err)
	}
	s.cron = c

	// Run immediately on start
	go s.Sweep()
	c.Start()

	s.logger.Info("pending sweeper started", "schedule", s.Schedule)
	return nil
}

// Stop stops the runner and waits for a sweep in progress.
func (s *PendingSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("pending sweeper stopped")
}

// Sweep purges once and reports how many entries were removed.
func (s *PendingSweeper) Sweep() int {
	ctx, cancel := context.WithTimeout(logctx.WithLogger(context.Background(), s.logger), sweepTimeout)
	defer cancel()

	n, err := s.Purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "pending sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired proposals purged", "count", n)
	}
	return n
}
