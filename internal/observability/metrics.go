package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects engine-level Prometheus metrics.
//
// The metrics track admission outcomes, slot occupancy, traffic budget
// consumption, contamination findings, and monitor activity. They are
// exported at the /metrics endpoint when the serve command runs with
// metrics enabled.
type Metrics struct {
	// DeploymentCounter counts admission attempts.
	// Labels: status (accepted|rejected)
	DeploymentCounter *prometheus.CounterVec

	// RemovalCounter counts removal attempts.
	// Labels: status (removed|unknown)
	RemovalCounter *prometheus.CounterVec

	// ActiveTests is the number of currently occupied slots.
	ActiveTests prometheus.Gauge

	// AvailableSlots is the number of free slots.
	AvailableSlots prometheus.Gauge

	// TrafficUtilization is the allocated share of the traffic budget, 0..1.
	TrafficUtilization prometheus.Gauge

	// ContaminationFindings counts pairwise findings by risk level.
	// Labels: risk (low|medium|high)
	ContaminationFindings *prometheus.CounterVec

	// MonitorTicks counts monitoring snapshots taken.
	MonitorTicks prometheus.Counter

	// PerformanceWarnings counts threshold breaches.
	// Labels: type (high_cpu|high_memory)
	PerformanceWarnings *prometheus.CounterVec

	// ScheduleActivations counts auto-start deployments by the activator.
	// Labels: status (deployed|expired|failed)
	ScheduleActivations *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics. A nil registerer
// falls back to the Prometheus default registry; tests pass their own
// registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DeploymentCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitdeck_deployments_total",
				Help: "Total admission attempts by outcome",
			},
			[]string{"status"},
		),
		RemovalCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitdeck_removals_total",
				Help: "Total removal attempts by outcome",
			},
			[]string{"status"},
		),
		ActiveTests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "splitdeck_active_tests",
				Help: "Number of currently occupied slots",
			},
		),
		AvailableSlots: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "splitdeck_available_slots",
				Help: "Number of free slots",
			},
		),
		TrafficUtilization: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "splitdeck_traffic_utilization",
				Help: "Allocated share of the traffic budget (0-1)",
			},
		),
		ContaminationFindings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitdeck_contamination_findings_total",
				Help: "Pairwise contamination findings by risk level",
			},
			[]string{"risk"},
		),
		MonitorTicks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "splitdeck_monitor_ticks_total",
				Help: "Monitoring snapshots taken",
			},
		),
		PerformanceWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitdeck_performance_warnings_total",
				Help: "Resource threshold breaches by type",
			},
			[]string{"type"},
		),
		ScheduleActivations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitdeck_schedule_activations_total",
				Help: "Schedule activator outcomes",
			},
			[]string{"status"},
		),
	}
}
