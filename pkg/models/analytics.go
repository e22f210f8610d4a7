package models

import "time"

// RiskLevel classifies contamination severity between two tests.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank orders risk levels for max aggregation.
func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Max returns the more severe of two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// OverlapType names the dimension two tests collide on.
type OverlapType string

const (
	OverlapNone    OverlapType = "none"
	OverlapElement OverlapType = "element"
	OverlapSegment OverlapType = "segment"
	OverlapBoth    OverlapType = "both"
)

// ContaminationFinding records statistical interference between a pair of
// simultaneously running tests.
type ContaminationFinding struct {
	PrimaryTest             string      `json:"primaryTest"`
	AffectedTest            string      `json:"affectedTest"`
	OverlapType             OverlapType `json:"overlapType"`
	RiskLevel               RiskLevel   `json:"riskLevel"`
	EffectMagnitude         float64     `json:"effectMagnitude"`
	StatisticalSignificance float64     `json:"statisticalSignificance"`
	MitigationApplied       bool        `json:"mitigationApplied"`
}

// ResourceUsage carries simulated load figures for ops visibility. The
// values are monotone in the active-test count and never gate admission.
type ResourceUsage struct {
	CPUUtilization      float64 `json:"cpuUtilization"`
	MemoryUsage         float64 `json:"memoryUsage"`
	NetworkBandwidth    float64 `json:"networkBandwidth"`
	DatabaseConnections int     `json:"databaseConnections"`
}

// DetailedAnalytics is a portfolio-level snapshot derived from in-memory
// engine state only.
type DetailedAnalytics struct {
	// TotalTests is the slot-pool capacity, not a count of ever-deployed tests.
	TotalTests int `json:"totalTests"`

	// ActiveTests is the count of occupied slots.
	ActiveTests int `json:"activeTests"`

	// TrafficUtilization is the allocated share of the traffic budget, 0..1.
	TrafficUtilization float64 `json:"trafficUtilization"`

	// SegmentCoverage maps segment name to the number of active tests
	// targeting it.
	SegmentCoverage map[string]int `json:"segmentCoverage"`

	// CrossTestEffects lists findings for every active pair with non-low risk.
	CrossTestEffects []ContaminationFinding `json:"crossTestEffects"`

	ResourceUsage ResourceUsage `json:"resourceUsage"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// FrameworkStatus summarizes the whole engine for callers.
type FrameworkStatus struct {
	IsActive              bool              `json:"isActive"`
	TotalSlots            int               `json:"totalSlots"`
	AvailableSlots        int               `json:"availableSlots"`
	OccupiedSlots         int               `json:"occupiedSlots"`
	TotalTrafficAllocated float64           `json:"totalTrafficAllocated"`
	ActiveTests           []string          `json:"activeTests"`
	Analytics             DetailedAnalytics `json:"analytics"`
}
