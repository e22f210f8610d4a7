// Package models provides domain types for the splitdeck admission engine.
package models

// TestDefinition is the minimal shape splitdeck consumes from the test
// management collaborator. Unknown fields supplied by callers are carried
// in Metadata and passed through opaquely.
type TestDefinition struct {
	// ID uniquely identifies the test. Required.
	ID string `json:"id"`

	// Name is an optional human-readable label.
	Name string `json:"name,omitempty"`

	// TargetAudience describes who the test is shown to. Required.
	TargetAudience *AudienceTarget `json:"targetAudience"`

	// Variations are the alternative experiences under test.
	Variations []Variation `json:"variations,omitempty"`

	// TrafficAllocation carries the test's own traffic request. When nil,
	// the engine falls back to its configured default allocation.
	TrafficAllocation *TrafficSettings `json:"trafficAllocation,omitempty"`

	// Metadata holds caller-supplied fields outside the minimal shape.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AudienceTarget names the audience segments a test targets.
type AudienceTarget struct {
	// Segments is the ordered segment list; the first entry is the primary
	// dimension used for conflict scoring.
	Segments []string `json:"segments"`

	// Size is the estimated audience size, when the caller knows it.
	// Zero means unknown.
	Size int `json:"size,omitempty"`
}

// Variation is one alternative experience within a test.
type Variation struct {
	Name     string          `json:"name,omitempty"`
	Elements []ElementChange `json:"elements,omitempty"`
}

// ElementChange mutates a single page element.
type ElementChange struct {
	Selector string `json:"selector"`
	Property string `json:"property,omitempty"`
	Value    string `json:"value,omitempty"`
}

// TrafficSettings is the per-test traffic request.
type TrafficSettings struct {
	TotalPercentage float64 `json:"totalPercentage"`
}

// PrimarySegment returns the first target segment, or "" when none exist.
func (t *TestDefinition) PrimarySegment() string {
	if t == nil || t.TargetAudience == nil || len(t.TargetAudience.Segments) == 0 {
		return ""
	}
	return t.TargetAudience.Segments[0]
}

// Segments returns the full target segment list.
func (t *TestDefinition) Segments() []string {
	if t == nil || t.TargetAudience == nil {
		return nil
	}
	return t.TargetAudience.Segments
}

// Selectors returns every element selector changed by any variation.
func (t *TestDefinition) Selectors() []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, v := range t.Variations {
		for _, el := range v.Elements {
			if el.Selector != "" {
				out = append(out, el.Selector)
			}
		}
	}
	return out
}

// RequestedTraffic returns the test's own traffic request, or fallback when
// the test does not carry one.
func (t *TestDefinition) RequestedTraffic(fallback float64) float64 {
	if t == nil || t.TrafficAllocation == nil || t.TrafficAllocation.TotalPercentage <= 0 {
		return fallback
	}
	return t.TrafficAllocation.TotalPercentage
}
