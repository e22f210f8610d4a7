package engine

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// ContaminationAnalyzer detects statistical interference between a
// candidate test and the active portfolio. Two signals are computed per
// pair: element overlap (the same page element mutated by both tests) and
// segment overlap (intersecting audience segments). Both signals true is
// high risk, exactly one is medium, neither is low.
type ContaminationAnalyzer struct {
	score ScoreFunc
}

// Analysis is the result of checking a candidate against active tests.
type Analysis struct {
	// Warnings are human-readable; each contains the word "overlap" and the
	// dimension involved so consumers can grep for cause.
	Warnings []string

	// Overlaps lists the IDs of active tests the candidate collides with.
	Overlaps []string

	// Risk is the maximum pairwise risk observed.
	Risk models.RiskLevel

	// Findings carries one record per non-clean pair.
	Findings []models.ContaminationFinding
}

// NewContaminationAnalyzer creates an analyzer. A nil score function falls
// back to the deterministic default.
func NewContaminationAnalyzer(score ScoreFunc) *ContaminationAnalyzer {
	if score == nil {
		score = DefaultScore
	}
	return &ContaminationAnalyzer{score: score}
}

// Analyze scores the candidate against every active test.
func (c *ContaminationAnalyzer) Analyze(candidate *models.TestDefinition, active []*models.TestDefinition) Analysis {
	result := Analysis{Risk: models.RiskLow}

	for _, other := range active {
		if other == nil || other.ID == candidate.ID {
			continue
		}
		overlap := classifyOverlap(candidate, other)
		if overlap == models.OverlapNone {
			continue
		}

		risk := riskFor(overlap)
		result.Risk = result.Risk.Max(risk)
		result.Overlaps = append(result.Overlaps, other.ID)

		if overlap == models.OverlapElement || overlap == models.OverlapBoth {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"element overlap with active test %s: the same page elements are mutated by both tests", other.ID))
		}
		if overlap == models.OverlapSegment || overlap == models.OverlapBoth {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"segment overlap with active test %s: shared audience segments may contaminate results", other.ID))
		}

		effect, significance := c.score(candidate, other, overlap)
		result.Findings = append(result.Findings, models.ContaminationFinding{
			PrimaryTest:             candidate.ID,
			AffectedTest:            other.ID,
			OverlapType:             overlap,
			RiskLevel:               risk,
			EffectMagnitude:         effect,
			StatisticalSignificance: significance,
		})
	}
	return result
}

func classifyOverlap(a, b *models.TestDefinition) models.OverlapType {
	element := selectorsIntersect(a.Selectors(), b.Selectors())
	segment := segmentsIntersect(a.Segments(), b.Segments())
	switch {
	case element && segment:
		return models.OverlapBoth
	case element:
		return models.OverlapElement
	case segment:
		return models.OverlapSegment
	default:
		return models.OverlapNone
	}
}

func riskFor(overlap models.OverlapType) models.RiskLevel {
	switch overlap {
	case models.OverlapBoth:
		return models.RiskHigh
	case models.OverlapElement, models.OverlapSegment:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func selectorsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, sel := range a {
		seen[strings.TrimSpace(sel)] = struct{}{}
	}
	for _, sel := range b {
		if _, ok := seen[strings.TrimSpace(sel)]; ok {
			return true
		}
	}
	return false
}

func segmentsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, seg := range a {
		seen[normalizeSegment(seg)] = struct{}{}
	}
	for _, seg := range b {
		if _, ok := seen[normalizeSegment(seg)]; ok {
			return true
		}
	}
	return false
}

func normalizeSegment(seg string) string {
	return strings.ToLower(strings.TrimSpace(seg))
}
