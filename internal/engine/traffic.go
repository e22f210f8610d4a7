package engine

import (
	"fmt"
	"math"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// trafficBudget is the global visitor traffic budget in percent.
const trafficBudget = 100.0

// TrafficAllocator computes and tracks per-test traffic shares against the
// global budget. Over-budget requests are a soft constraint: the allocation
// is clamped to the remaining budget and a warning is attached instead of
// rejecting the deployment. Like SlotPool, the allocator relies on the
// engine's admission mutex for synchronization.
type TrafficAllocator struct {
	defaultPercent  float64
	highUtilization float64
	highRequest     float64
	allocations     map[string]*allocation
}

type allocation struct {
	requested float64
	current   float64
	record    models.TrafficAllocation
}

// NewTrafficAllocator creates an allocator. defaultPercent is granted to
// tests without their own request; the thresholds drive soft warnings.
func NewTrafficAllocator(defaultPercent, highUtilization, highRequest float64) *TrafficAllocator {
	return &TrafficAllocator{
		defaultPercent:  defaultPercent,
		highUtilization: highUtilization,
		highRequest:     highRequest,
		allocations:     make(map[string]*allocation),
	}
}

// SetDefaults updates the fallback percentage and warning thresholds for
// future allocations.
func (a *TrafficAllocator) SetDefaults(defaultPercent, highUtilization, highRequest float64) {
	a.defaultPercent = defaultPercent
	a.highUtilization = highUtilization
	a.highRequest = highRequest
}

// Allocate grants traffic to a test and returns the allocation record plus
// any soft warnings. The sum of active allocations never exceeds the budget.
func (a *TrafficAllocator) Allocate(test *models.TestDefinition, slotID string, overlaps []string) (models.TrafficAllocation, []string) {
	requested := test.RequestedTraffic(a.defaultPercent)
	var warnings []string

	if requested > a.highRequest {
		warnings = append(warnings, fmt.Sprintf(
			"traffic request of %.1f%% for test %s is unusually high (threshold %.1f%%)",
			requested, test.ID, a.highRequest))
	}

	total := a.total()
	granted := requested
	if remaining := trafficBudget - total; granted > remaining {
		granted = math.Max(remaining, 0)
		warnings = append(warnings, fmt.Sprintf(
			"traffic budget exhausted: request of %.1f%% for test %s capped at %.1f%%",
			requested, test.ID, granted))
	}
	if total+granted > a.highUtilization {
		warnings = append(warnings, fmt.Sprintf(
			"traffic utilization at %.1f%% exceeds the %.1f%% watermark",
			total+granted, a.highUtilization))
	}

	record := models.TrafficAllocation{
		Percentage: granted,
		Segment:    test.PrimarySegment(),
		TestSlots:  []string{slotID},
		Overlaps:   overlaps,
	}
	a.allocations[test.ID] = &allocation{
		requested: requested,
		current:   granted,
		record:    record,
	}
	return record, warnings
}

// Deallocate releases a test's traffic and redistributes the freed budget
// evenly across the remaining active tests, each capped at its originally
// requested percentage. The freed percentage is returned.
func (a *TrafficAllocator) Deallocate(testID string) float64 {
	alloc, ok := a.allocations[testID]
	if !ok {
		return 0
	}
	freed := alloc.current
	delete(a.allocations, testID)

	if freed <= 0 || len(a.allocations) == 0 {
		return freed
	}

	share := freed / float64(len(a.allocations))
	for _, other := range a.allocations {
		headroom := other.requested - other.current
		if headroom <= 0 {
			continue
		}
		grant := math.Min(share, headroom)
		other.current += grant
		other.record.Percentage = other.current
	}
	return freed
}

// Allocation returns the current record for a test.
func (a *TrafficAllocator) Allocation(testID string) (models.TrafficAllocation, bool) {
	alloc, ok := a.allocations[testID]
	if !ok {
		return models.TrafficAllocation{}, false
	}
	return alloc.record, true
}

// Total returns the summed active allocation percentage.
func (a *TrafficAllocator) Total() float64 { return a.total() }

// Utilization returns the allocated share of the budget in 0..1.
func (a *TrafficAllocator) Utilization() float64 {
	return a.total() / trafficBudget
}

func (a *TrafficAllocator) total() float64 {
	sum := 0.0
	for _, alloc := range a.allocations {
		sum += alloc.current
	}
	return sum
}
