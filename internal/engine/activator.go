package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Activator is the companion timer layered on top of schedule registration.
// Each scan it deploys due auto-start schedules through the engine's own
// admission path and retires deployments whose window has closed. Recurring
// schedules are re-armed for their next window.
type Activator struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newActivator(e *Engine, interval time.Duration, logger *slog.Logger) *Activator {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Activator{
		engine:   e,
		interval: interval,
		logger:   logger.With("component", "activator"),
	}
}

// Start begins scanning for due schedules until the context is cancelled or
// Stop is called.
func (a *Activator) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				a.scan(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (a *Activator) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.started = false
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

// RunOnce executes a single scan immediately (primarily for tests).
func (a *Activator) RunOnce(ctx context.Context) {
	a.scan(ctx)
}

func (a *Activator) scan(ctx context.Context) {
	now := a.engine.clock()

	for _, schedule := range a.engine.dueSchedules(now) {
		def, ok := a.engine.Definition(schedule.TestID)
		if !ok {
			a.logger.Warn("scheduled test has no registered definition; skipping",
				"test_id", schedule.TestID)
			a.engine.markScheduleActivated(schedule.TestID)
			a.engine.countActivation("failed")
			continue
		}
		result, err := a.engine.DeployTest(ctx, def, schedule.SlotID)
		a.engine.markScheduleActivated(schedule.TestID)
		if err == nil && result.Success {
			a.logger.Info("scheduled test deployed",
				"test_id", schedule.TestID, "slot", result.SlotID)
			a.engine.countActivation("deployed")
		} else {
			a.logger.Warn("scheduled deployment rejected",
				"test_id", schedule.TestID, "error", err, "warnings", result.Warnings)
			a.engine.countActivation("failed")
		}
	}

	for _, testID := range a.engine.expiredSchedules(now) {
		removed := a.engine.RemoveTest(ctx, testID)
		rearmed := a.engine.retireSchedule(testID, now)
		a.logger.Info("schedule window closed",
			"test_id", testID, "removed", removed.Success, "rearmed", rearmed)
		a.engine.countActivation("expired")
	}
}
