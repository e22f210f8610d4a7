package engine

import (
	"strings"
	"testing"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

func testWithTraffic(id string, percent float64) *models.TestDefinition {
	def := &models.TestDefinition{
		ID:             id,
		TargetAudience: &models.AudienceTarget{Segments: []string{"general"}},
	}
	if percent > 0 {
		def.TrafficAllocation = &models.TrafficSettings{TotalPercentage: percent}
	}
	return def
}

func TestTrafficAllocator_DefaultPercentage(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 30)
	record, warnings := alloc.Allocate(testWithTraffic("a", 0), "slot_01", nil)
	if record.Percentage != 10 {
		t.Errorf("Percentage = %v, want default 10", record.Percentage)
	}
	if record.Segment != "general" {
		t.Errorf("Segment = %q, want general", record.Segment)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestTrafficAllocator_HighRequestWarns(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 30)
	record, warnings := alloc.Allocate(testWithTraffic("big", 50), "slot_01", nil)
	if record.Percentage != 50 {
		t.Errorf("Percentage = %v, want 50 (soft constraint)", record.Percentage)
	}
	if len(warnings) == 0 {
		t.Fatal("expected at least one warning for a 50% request")
	}
}

func TestTrafficAllocator_BudgetCap(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 30)
	alloc.Allocate(testWithTraffic("a", 40), "slot_01", nil)
	alloc.Allocate(testWithTraffic("b", 40), "slot_02", nil)

	record, warnings := alloc.Allocate(testWithTraffic("c", 40), "slot_03", nil)
	if record.Percentage != 20 {
		t.Errorf("capped Percentage = %v, want 20", record.Percentage)
	}
	if alloc.Total() > 100 {
		t.Errorf("Total() = %v exceeds budget", alloc.Total())
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "capped") {
			found = true
		}
	}
	if !found {
		t.Errorf("no capping warning in %v", warnings)
	}
}

func TestTrafficAllocator_UtilizationWatermark(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 90)
	alloc.Allocate(testWithTraffic("a", 60), "slot_01", nil)
	_, warnings := alloc.Allocate(testWithTraffic("b", 30), "slot_02", nil)

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "watermark") {
			found = true
		}
	}
	if !found {
		t.Errorf("no watermark warning in %v", warnings)
	}
}

func TestTrafficAllocator_DeallocateRedistributes(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 30)
	alloc.Allocate(testWithTraffic("a", 40), "slot_01", nil)
	alloc.Allocate(testWithTraffic("b", 40), "slot_02", nil)
	alloc.Allocate(testWithTraffic("c", 40), "slot_03", nil) // capped to 20

	freed := alloc.Deallocate("a")
	if freed != 40 {
		t.Fatalf("Deallocate(a) = %v, want 40", freed)
	}

	// b is already at its requested ceiling; c had 20 points of headroom.
	if record, _ := alloc.Allocation("b"); record.Percentage != 40 {
		t.Errorf("b Percentage = %v, want 40 (capped by own request)", record.Percentage)
	}
	if record, _ := alloc.Allocation("c"); record.Percentage != 40 {
		t.Errorf("c Percentage = %v, want 40 after redistribution", record.Percentage)
	}
	if alloc.Total() != 80 {
		t.Errorf("Total() = %v, want 80", alloc.Total())
	}
}

func TestTrafficAllocator_DeallocateUnknown(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 30)
	if freed := alloc.Deallocate("missing"); freed != 0 {
		t.Errorf("Deallocate(missing) = %v, want 0", freed)
	}
}

func TestTrafficAllocator_Utilization(t *testing.T) {
	alloc := NewTrafficAllocator(10, 80, 30)
	alloc.Allocate(testWithTraffic("a", 25), "slot_01", nil)
	if got := alloc.Utilization(); got != 0.25 {
		t.Errorf("Utilization() = %v, want 0.25", got)
	}
}
