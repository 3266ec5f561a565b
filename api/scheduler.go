/*
scheduler.go - Periodic penalty scheduler runner

PURPOSE:
  Runs the penalty scheduler on a ticker so missed days are backfilled and
  unpaid light penalties escalated without manual triggering. Each tick picks
  the window the wall clock implies (before 14:00 local the catch-up pass,
  after it the escalation pass).

DESIGN:
  - Background goroutine with a configurable tick interval
  - Every pass is idempotent, so overlapping or repeated ticks are harmless
  - Logs a counter report per pass for audit

CONFIGURATION:
  - TickInterval: How often to run (default: 15 minutes)
  - Enabled: Whether the runner is active (default: true)

USAGE:
  runner := NewSchedulerRunner(scheduler, cfg, log)
  runner.Start()
  // ... later
  runner.Stop()

SEE ALSO:
  - handlers.go: RunScheduler endpoint (manual trigger)
  - lease/scheduler.go: The two-window pass implementations
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/lease-engine/lease"
)

// SchedulerRunner drives the penalty scheduler on a ticker.
type SchedulerRunner struct {
	Scheduler    *lease.PenaltyScheduler
	Config       lease.Config
	Log          *logrus.Logger
	TickInterval time.Duration
	Enabled      bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSchedulerRunner creates a new runner.
func NewSchedulerRunner(scheduler *lease.PenaltyScheduler, cfg lease.Config, log *logrus.Logger) *SchedulerRunner {
	return &SchedulerRunner{
		Scheduler:    scheduler,
		Config:       cfg,
		Log:          log,
		TickInterval: 15 * time.Minute,
		Enabled:      true,
		stop:         make(chan bool),
	}
}

// Start begins the runner.
func (sr *SchedulerRunner) Start() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if !sr.Enabled {
		sr.Log.Info("scheduler runner disabled, not starting")
		return
	}

	sr.ticker = time.NewTicker(sr.TickInterval)
	sr.wg.Add(1)

	go sr.run()

	sr.Log.WithField("interval", sr.TickInterval).Info("scheduler runner started")
}

// Stop stops the runner and waits for an in-flight pass to finish.
func (sr *SchedulerRunner) Stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.ticker != nil {
		sr.ticker.Stop()
		close(sr.stop)
		sr.wg.Wait()
		sr.Log.Info("scheduler runner stopped")
	}
}

func (sr *SchedulerRunner) run() {
	defer sr.wg.Done()

	// Run immediately on start
	sr.runOnce()

	for {
		select {
		case <-sr.ticker.C:
			sr.runOnce()
		case <-sr.stop:
			return
		}
	}
}

func (sr *SchedulerRunner) runOnce() {
	ctx := context.Background()
	now := time.Now()
	window := lease.WindowForTime(now, sr.Config.Location)

	report, err := sr.Scheduler.Run(ctx, window, now)
	if err != nil {
		sr.Log.WithError(err).WithField("window", window).Error("scheduler pass failed")
		return
	}

	if report.Created > 0 || report.Escalated > 0 || report.Failed > 0 {
		sr.Log.WithFields(logrus.Fields{
			"window":        report.Window,
			"created":       report.Created,
			"escalated":     report.Escalated,
			"unchanged":     report.Unchanged,
			"paid_skipped":  report.PaidSkipped,
			"leave_skipped": report.LeaveSkipped,
			"failed":        report.Failed,
		}).Info("scheduler pass completed")
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (sr *SchedulerRunner) RunNow() {
	sr.runOnce()
}
