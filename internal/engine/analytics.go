package engine

import (
	"math"
	"sort"
	"time"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// Analytics derives portfolio-level metrics from current in-memory state.
// It performs no I/O and never mutates engine state.
type Analytics struct {
	analyzer *ContaminationAnalyzer
}

// NewAnalytics creates an aggregator sharing the engine's analyzer so that
// cross-test effect scoring matches admission-time findings.
func NewAnalytics(analyzer *ContaminationAnalyzer) *Analytics {
	return &Analytics{analyzer: analyzer}
}

// portfolio is the read-only state slice the aggregator consumes. The
// engine assembles it under its admission mutex so snapshots are consistent.
type portfolio struct {
	capacity    int
	utilization float64
	active      []*models.TestDefinition
}

// Snapshot computes DetailedAnalytics for the portfolio.
func (a *Analytics) Snapshot(p portfolio, now time.Time) models.DetailedAnalytics {
	coverage := make(map[string]int)
	for _, test := range p.active {
		for _, seg := range test.Segments() {
			coverage[normalizeSegment(seg)]++
		}
	}

	return models.DetailedAnalytics{
		TotalTests:         p.capacity,
		ActiveTests:        len(p.active),
		TrafficUtilization: p.utilization,
		SegmentCoverage:    coverage,
		CrossTestEffects:   a.crossTestEffects(p.active),
		ResourceUsage:      simulateResourceUsage(len(p.active)),
		GeneratedAt:        now,
	}
}

// crossTestEffects reports every active pair with non-low risk.
func (a *Analytics) crossTestEffects(active []*models.TestDefinition) []models.ContaminationFinding {
	ordered := make([]*models.TestDefinition, len(active))
	copy(ordered, active)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var findings []models.ContaminationFinding
	for i, primary := range ordered {
		for _, affected := range ordered[i+1:] {
			overlap := classifyOverlap(primary, affected)
			risk := riskFor(overlap)
			if risk == models.RiskLow {
				continue
			}
			effect, significance := a.analyzer.score(primary, affected, overlap)
			findings = append(findings, models.ContaminationFinding{
				PrimaryTest:             primary.ID,
				AffectedTest:            affected.ID,
				OverlapType:             overlap,
				RiskLevel:               risk,
				EffectMagnitude:         effect,
				StatisticalSignificance: significance,
			})
		}
	}
	return findings
}

// simulateResourceUsage produces demo/ops load figures that grow with the
// active-test count. They are instrumentation only and never gate admission.
func simulateResourceUsage(activeTests int) models.ResourceUsage {
	n := float64(activeTests)
	return models.ResourceUsage{
		CPUUtilization:      math.Min(8+3.5*n, 100),
		MemoryUsage:         math.Min(12+2.8*n, 100),
		NetworkBandwidth:    5 + 1.5*n,
		DatabaseConnections: 2 + activeTests,
	}
}
