package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/splitdeck/internal/observability"
	"github.com/haasonsaas/splitdeck/pkg/models"
)

// Monitor drives recurring analytics snapshots and threshold alerts. Each
// tick takes a consistent snapshot from the engine, emits a
// monitoring_update event, and raises performance_warning events when the
// simulated resource figures exceed configured thresholds. The monitor
// only ever reads engine state.
type Monitor struct {
	interval     time.Duration
	cpuThreshold float64
	memThreshold float64

	snapshot func() models.DetailedAnalytics
	publish  func(EventType, map[string]any)
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// newMonitor wires a monitor to the engine's snapshot and publish hooks.
func newMonitor(
	interval time.Duration,
	cpuThreshold, memThreshold float64,
	snapshot func() models.DetailedAnalytics,
	publish func(EventType, map[string]any),
	metrics *observability.Metrics,
	logger *slog.Logger,
	now func() time.Time,
) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		interval:     interval,
		cpuThreshold: cpuThreshold,
		memThreshold: memThreshold,
		snapshot:     snapshot,
		publish:      publish,
		metrics:      metrics,
		logger:       logger.With("component", "monitor"),
		now:          now,
	}
}

// Start begins the monitoring loop until the context is cancelled or Stop
// is called. Starting twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit. No events are emitted
// after Stop returns. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// RunOnce executes a single monitoring tick immediately (primarily for
// tests).
func (m *Monitor) RunOnce() {
	m.tick()
}

func (m *Monitor) tick() {
	analytics := m.snapshot()
	if m.metrics != nil {
		m.metrics.MonitorTicks.Inc()
	}

	status := "healthy"
	usage := analytics.ResourceUsage
	if usage.CPUUtilization > m.cpuThreshold || usage.MemoryUsage > m.memThreshold {
		status = "degraded"
	}

	m.publish(EventMonitoringUpdate, map[string]any{
		"timestamp": m.now(),
		"analytics": analytics,
		"status":    status,
	})

	if usage.CPUUtilization > m.cpuThreshold {
		m.warn("high_cpu", usage.CPUUtilization, m.cpuThreshold)
	}
	if usage.MemoryUsage > m.memThreshold {
		m.warn("high_memory", usage.MemoryUsage, m.memThreshold)
	}
}

func (m *Monitor) warn(kind string, value, threshold float64) {
	m.logger.Warn("performance threshold exceeded",
		"type", kind, "value", value, "threshold", threshold)
	if m.metrics != nil {
		m.metrics.PerformanceWarnings.WithLabelValues(kind).Inc()
	}
	m.publish(EventPerformanceWarning, map[string]any{
		"type":      kind,
		"value":     value,
		"threshold": threshold,
	})
}
