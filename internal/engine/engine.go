package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/splitdeck/internal/config"
	"github.com/haasonsaas/splitdeck/internal/observability"
	"github.com/haasonsaas/splitdeck/pkg/models"
)

// ErrEngineClosed is returned by operations on a destroyed engine.
var ErrEngineClosed = errors.New("engine is closed")

// Exact rejection strings for pool exhaustion. Downstream tooling matches
// on them.
const (
	warnNoSlots     = "No available slots found for test deployment"
	conflictNoSlots = "All slots occupied or blocked by constraints"
)

// Engine is the admission facade. It composes the slot pool, traffic
// allocator, contamination analyzer, schedule book, analytics aggregator,
// and monitor loop, and owns all mutable state. A single mutex serializes
// admission operations so slot acquisition and traffic allocation commit
// atomically.
type Engine struct {
	mu          sync.Mutex
	cfg         config.EngineConfig
	monitorCfg  config.MonitorConfig
	slots       *SlotPool
	traffic     *TrafficAllocator
	analyzer    *ContaminationAnalyzer
	schedules   *ScheduleBook
	analytics   *Analytics
	deployments map[string]*models.Deployment
	definitions map[string]*models.TestDefinition
	closed      bool

	hub       *Hub
	monitor   *Monitor
	activator *Activator
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	initOnce  sync.Once
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides the clock for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithScoreFunc plugs in a contamination scoring model.
func WithScoreFunc(score ScoreFunc) Option {
	return func(e *Engine) {
		if score != nil {
			e.analyzer = NewContaminationAnalyzer(score)
		}
	}
}

// New creates an engine from configuration.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg.Engine,
		monitorCfg:  cfg.Monitor,
		analyzer:    NewContaminationAnalyzer(nil),
		schedules:   NewScheduleBook(),
		deployments: make(map[string]*models.Deployment),
		definitions: make(map[string]*models.TestDefinition),
		hub:         NewHub(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")

	e.slots = NewSlotPool(e.cfg.MaxSimultaneousTests)
	e.traffic = NewTrafficAllocator(
		e.cfg.DefaultTrafficAllocation,
		e.cfg.HighUtilizationPercent,
		e.cfg.HighRequestPercent,
	)
	e.analytics = NewAnalytics(e.analyzer)
	e.monitor = newMonitor(
		e.monitorCfg.Interval,
		e.monitorCfg.CPUWarningPercent,
		e.monitorCfg.MemoryWarningPercent,
		e.DetailedAnalytics,
		e.hub.Publish,
		e.metrics,
		e.logger,
		e.now,
	)
	e.activator = newActivator(e, e.monitorCfg.ActivatorInterval, e.logger)

	e.logger.Info("engine initialized",
		"slots", e.slots.Capacity(),
		"isolation", e.cfg.CrossTestIsolationLevel)
	return e, nil
}

// Start emits framework_initialized and launches the monitor and activator
// loops. Publishing happens here rather than in New so subscribers attached
// between the two can observe the event; it fires once across repeated
// Start calls.
func (e *Engine) Start(ctx context.Context) {
	e.initOnce.Do(func() {
		e.mu.Lock()
		data := map[string]any{
			"totalSlots":    e.slots.Capacity(),
			"configuration": e.cfg,
		}
		e.mu.Unlock()
		e.hub.Publish(EventFrameworkInitialized, data)
	})
	e.monitor.Start(ctx)
	e.activator.Start(ctx)
}

// Subscribe registers an event listener.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.hub.Subscribe()
}

// Monitor returns the monitoring loop, exposed for tick-level control in
// tests and embedding callers.
func (e *Engine) Monitor() *Monitor { return e.monitor }

// Activator returns the schedule activation loop.
func (e *Engine) Activator() *Activator { return e.activator }

// DeployTest admits a test onto a free slot and grants it traffic. The
// error is non-nil only for malformed definitions or a destroyed engine;
// admission rejections come back as an unsuccessful result.
func (e *Engine) DeployTest(ctx context.Context, def *models.TestDefinition, preferredSlot string) (models.DeployResult, error) {
	if err := ValidateDefinition(def); err != nil {
		return models.DeployResult{Success: false}, err
	}
	_ = ctx

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.DeployResult{Success: false, TestID: def.ID}, ErrEngineClosed
	}

	// Idempotent re-registration: an already-active test keeps its slot
	// and allocation. The allocator record is authoritative; the stored
	// deployment copy may predate a redistribution.
	if existing, ok := e.deployments[def.ID]; ok {
		record, live := e.traffic.Allocation(def.ID)
		if !live {
			record = existing.TrafficAllocation
		}
		existing.TrafficAllocation = record
		result := models.DeployResult{
			Success:           true,
			TestID:            def.ID,
			SlotID:            existing.SlotID,
			TrafficAllocation: &record,
			ContaminationRisk: models.RiskLow,
			Warnings:          []string{fmt.Sprintf("test %s is already active; existing deployment retained", def.ID)},
		}
		e.mu.Unlock()
		return result, nil
	}

	analysis := e.safeAnalyze(def)

	if e.cfg.CrossTestIsolationLevel == config.IsolationStrict && analysis.Risk == models.RiskHigh {
		result := models.DeployResult{
			Success:           false,
			TestID:            def.ID,
			ContaminationRisk: analysis.Risk,
			Warnings:          analysis.Warnings,
			Conflicts:         []string{"High contamination risk violates strict isolation level"},
		}
		e.countDeployment("rejected")
		e.mu.Unlock()
		e.logger.Warn("deployment rejected by strict isolation",
			"test_id", def.ID, "overlaps", analysis.Overlaps)
		return result, nil
	}

	slotID, ok := e.slots.Acquire(def.ID, preferredSlot)
	if !ok {
		result := models.DeployResult{
			Success:   false,
			TestID:    def.ID,
			Warnings:  []string{warnNoSlots},
			Conflicts: []string{conflictNoSlots},
		}
		e.countDeployment("rejected")
		e.mu.Unlock()
		e.logger.Warn("deployment rejected: pool exhausted", "test_id", def.ID)
		return result, nil
	}

	record, trafficWarnings := e.traffic.Allocate(def, slotID, analysis.Overlaps)

	warnings := append(analysis.Warnings, trafficWarnings...)
	if size := audienceSize(def); size > 0 && size < e.cfg.MinimumSegmentSize {
		warnings = append(warnings, fmt.Sprintf(
			"audience size %d is below the minimum segment size %d; results may be underpowered",
			size, e.cfg.MinimumSegmentSize))
	}

	defCopy := *def
	e.deployments[def.ID] = &models.Deployment{
		TestID:            def.ID,
		SlotID:            slotID,
		TrafficAllocation: record,
		DeployedAt:        e.now(),
	}
	e.definitions[def.ID] = &defCopy

	e.countDeployment("accepted")
	for _, finding := range analysis.Findings {
		if e.metrics != nil {
			e.metrics.ContaminationFindings.WithLabelValues(string(finding.RiskLevel)).Inc()
		}
	}
	e.updateGaugesLocked()
	e.mu.Unlock()

	e.hub.Publish(EventTestDeployed, map[string]any{
		"testId":            def.ID,
		"slotId":            slotID,
		"trafficAllocation": record,
		"contaminationRisk": analysis.Risk,
	})
	e.logger.Info("test deployed",
		"test_id", def.ID,
		"slot", slotID,
		"traffic", record.Percentage,
		"risk", analysis.Risk)

	return models.DeployResult{
		Success:           true,
		TestID:            def.ID,
		SlotID:            slotID,
		TrafficAllocation: &record,
		ContaminationRisk: analysis.Risk,
		Warnings:          warnings,
		Conflicts:         nil,
	}, nil
}

// RemoveTest releases a test's slot and redistributes its traffic.
// Removing an unknown test is not an error.
func (e *Engine) RemoveTest(ctx context.Context, testID string) models.RemoveResult {
	_ = ctx

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return models.RemoveResult{Success: false, TestID: testID}
	}
	deployment, ok := e.deployments[testID]
	if !ok {
		e.countRemoval("unknown")
		e.mu.Unlock()
		return models.RemoveResult{Success: false, TestID: testID}
	}

	releasedSlot := deployment.SlotID
	e.slots.Release(releasedSlot)
	freed := e.traffic.Deallocate(testID)
	delete(e.deployments, testID)
	// Redistribution may have raised other tests' shares; refresh their
	// stored records.
	for id, d := range e.deployments {
		if record, live := e.traffic.Allocation(id); live {
			d.TrafficAllocation = record
		}
	}
	// A test with a registered schedule keeps its definition so a
	// recurring window can redeploy it.
	if _, scheduled := e.schedules.Get(testID); !scheduled {
		delete(e.definitions, testID)
	}

	e.countRemoval("removed")
	e.updateGaugesLocked()
	e.mu.Unlock()

	e.hub.Publish(EventTestRemoved, map[string]any{
		"testId":          testID,
		"releasedSlot":    releasedSlot,
		"releasedTraffic": freed,
	})
	e.logger.Info("test removed",
		"test_id", testID, "slot", releasedSlot, "released_traffic", freed)

	return models.RemoveResult{
		Success:            true,
		TestID:             testID,
		ReleasedSlot:       releasedSlot,
		ReallocatedTraffic: freed,
	}
}

// ScheduleTest registers a deferred activation and immediately emits
// test_scheduled. Dependency ordering is the orchestrating caller's
// responsibility.
func (e *Engine) ScheduleTest(testID string, schedule models.TestSchedule) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if err := e.schedules.Register(testID, schedule); err != nil {
		e.mu.Unlock()
		return err
	}
	schedule.TestID = testID
	e.mu.Unlock()

	e.hub.Publish(EventTestScheduled, map[string]any{
		"testId":   testID,
		"schedule": schedule,
	})
	e.logger.Info("test scheduled",
		"test_id", testID,
		"start", schedule.StartTime,
		"auto_start", schedule.AutoStart)
	return nil
}

// RegisterDefinition stores a test definition for later scheduled
// deployment by the activator.
func (e *Engine) RegisterDefinition(def *models.TestDefinition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	defCopy := *def
	e.mu.Lock()
	e.definitions[def.ID] = &defCopy
	e.mu.Unlock()
	return nil
}

// UpdateConfiguration applies a partial configuration change. Updates only
// affect future decisions; deployed tests are never evicted. When the slot
// capacity shrinks below the occupied count, the effective capacity stays
// at the occupied count until tests are removed.
func (e *Engine) UpdateConfiguration(update config.EngineUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.cfg = update.Apply(e.cfg)
	e.cfg.MaxSimultaneousTests = e.slots.Resize(e.cfg.MaxSimultaneousTests)
	e.traffic.SetDefaults(
		e.cfg.DefaultTrafficAllocation,
		e.cfg.HighUtilizationPercent,
		e.cfg.HighRequestPercent,
	)
	cfg := e.cfg
	e.updateGaugesLocked()
	e.mu.Unlock()

	e.hub.Publish(EventConfigurationUpdated, map[string]any{
		"configuration": cfg,
	})
	e.logger.Info("configuration updated",
		"max_tests", cfg.MaxSimultaneousTests,
		"isolation", cfg.CrossTestIsolationLevel)
	return nil
}

// Status summarizes the engine for callers.
func (e *Engine) Status() models.FrameworkStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := make([]string, 0, len(e.deployments))
	for id := range e.deployments {
		active = append(active, id)
	}
	sort.Strings(active)

	return models.FrameworkStatus{
		IsActive:              !e.closed,
		TotalSlots:            e.slots.Capacity(),
		AvailableSlots:        e.slots.Available(),
		OccupiedSlots:         e.slots.Occupied(),
		TotalTrafficAllocated: e.traffic.Total(),
		ActiveTests:           active,
		Analytics:             e.snapshotLocked(),
	}
}

// DetailedAnalytics returns a consistent portfolio snapshot.
func (e *Engine) DetailedAnalytics() models.DetailedAnalytics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Configuration returns the current engine configuration.
func (e *Engine) Configuration() config.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Definition returns the registered definition for a test.
func (e *Engine) Definition(testID string) (*models.TestDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.definitions[testID]
	if !ok {
		return nil, false
	}
	defCopy := *def
	return &defCopy, true
}

// Close destroys the engine: the monitor and activator are stopped and
// joined before the terminal framework_destroyed event, after which no
// further events are emitted. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.activator.Stop()
	e.monitor.Stop()

	e.hub.Publish(EventFrameworkDestroyed, map[string]any{})
	e.hub.Close()
	e.logger.Info("engine destroyed")
	return nil
}

// snapshotLocked assembles analytics under the admission mutex.
func (e *Engine) snapshotLocked() models.DetailedAnalytics {
	active := make([]*models.TestDefinition, 0, len(e.deployments))
	for id := range e.deployments {
		if def, ok := e.definitions[id]; ok {
			active = append(active, def)
		}
	}
	return e.analytics.Snapshot(portfolio{
		capacity:    e.slots.Capacity(),
		utilization: e.traffic.Utilization(),
		active:      active,
	}, e.now())
}

// safeAnalyze shields admission from analyzer failures: a panic becomes a
// warning on the result instead of crashing the caller or monitor loop.
func (e *Engine) safeAnalyze(def *models.TestDefinition) (analysis Analysis) {
	defer func() {
		if r := recover(); r != nil {
			analysis = Analysis{
				Risk:     models.RiskLow,
				Warnings: []string{fmt.Sprintf("contamination analysis failed: %v", r)},
			}
		}
	}()

	active := make([]*models.TestDefinition, 0, len(e.deployments))
	for id := range e.deployments {
		if d, ok := e.definitions[id]; ok {
			active = append(active, d)
		}
	}
	return e.analyzer.Analyze(def, active)
}

func audienceSize(def *models.TestDefinition) int {
	if def.TargetAudience == nil {
		return 0
	}
	return def.TargetAudience.Size
}

func (e *Engine) clock() time.Time { return e.now() }

func (e *Engine) dueSchedules(now time.Time) []models.TestSchedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedules.Due(now)
}

func (e *Engine) expiredSchedules(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedules.Expired(now)
}

func (e *Engine) markScheduleActivated(testID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schedules.MarkActivated(testID)
}

func (e *Engine) retireSchedule(testID string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedules.Retire(testID, now)
}

func (e *Engine) countActivation(status string) {
	if e.metrics != nil {
		e.metrics.ScheduleActivations.WithLabelValues(status).Inc()
	}
}

func (e *Engine) countDeployment(status string) {
	if e.metrics != nil {
		e.metrics.DeploymentCounter.WithLabelValues(status).Inc()
	}
}

func (e *Engine) countRemoval(status string) {
	if e.metrics != nil {
		e.metrics.RemovalCounter.WithLabelValues(status).Inc()
	}
}

// updateGaugesLocked refreshes occupancy and utilization gauges.
func (e *Engine) updateGaugesLocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.ActiveTests.Set(float64(e.slots.Occupied()))
	e.metrics.AvailableSlots.Set(float64(e.slots.Available()))
	e.metrics.TrafficUtilization.Set(e.traffic.Utilization())
}
