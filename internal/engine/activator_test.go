package engine

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

func TestActivator_DeploysDueSchedule(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eng := newTestEngine(t, nil, WithClock(clock.Now))

	def := defWith("scheduled-a", []string{"analytical"}, nil)
	if err := eng.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition() error = %v", err)
	}
	err := eng.ScheduleTest("scheduled-a", models.TestSchedule{
		SlotID:    "slot_04",
		StartTime: clock.Now().Add(10 * time.Minute),
		EndTime:   clock.Now().Add(2 * time.Hour),
		AutoStart: true,
	})
	if err != nil {
		t.Fatalf("ScheduleTest() error = %v", err)
	}

	// Before the start time nothing activates.
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 0 {
		t.Fatal("schedule activated before its start time")
	}

	clock.Advance(15 * time.Minute)
	eng.Activator().RunOnce(context.Background())

	status := eng.Status()
	if status.OccupiedSlots != 1 {
		t.Fatalf("OccupiedSlots = %d, want 1 after activation", status.OccupiedSlots)
	}
	deployment, ok := eng.Definition("scheduled-a")
	if !ok || deployment.ID != "scheduled-a" {
		t.Error("activated test has no live definition")
	}

	// A second scan must not deploy it again.
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 1 {
		t.Error("schedule activated twice")
	}
}

func TestActivator_RetiresExpiredWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eng := newTestEngine(t, nil, WithClock(clock.Now))

	def := defWith("windowed", []string{"mobile"}, nil)
	if err := eng.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition() error = %v", err)
	}
	err := eng.ScheduleTest("windowed", models.TestSchedule{
		SlotID:    "slot_02",
		StartTime: clock.Now().Add(time.Minute),
		EndTime:   clock.Now().Add(time.Hour),
		AutoStart: true,
	})
	if err != nil {
		t.Fatalf("ScheduleTest() error = %v", err)
	}

	clock.Advance(5 * time.Minute)
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 1 {
		t.Fatal("schedule did not activate inside its window")
	}

	clock.Advance(2 * time.Hour)
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 0 {
		t.Error("expired test not removed")
	}
}

func TestActivator_RecurringScheduleRearms(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eng := newTestEngine(t, nil, WithClock(clock.Now))

	def := defWith("daily", []string{"returning"}, nil)
	if err := eng.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition() error = %v", err)
	}
	err := eng.ScheduleTest("daily", models.TestSchedule{
		SlotID:     "slot_01",
		StartTime:  clock.Now().Add(time.Minute),
		EndTime:    clock.Now().Add(time.Hour),
		AutoStart:  true,
		Recurrence: "0 12 * * *",
	})
	if err != nil {
		t.Fatalf("ScheduleTest() error = %v", err)
	}

	clock.Advance(5 * time.Minute)
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 1 {
		t.Fatal("first occurrence did not activate")
	}

	// Window closes; the recurrence re-arms for noon.
	clock.Advance(2 * time.Hour)
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 0 {
		t.Fatal("first occurrence not retired")
	}

	clock.Advance(time.Hour) // 12:05
	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 1 {
		t.Error("recurring schedule did not reactivate at the next occurrence")
	}
}

func TestActivator_MissingDefinitionSkipped(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eng := newTestEngine(t, nil, WithClock(clock.Now))

	err := eng.ScheduleTest("ghost", models.TestSchedule{
		SlotID:    "slot_01",
		StartTime: clock.Now().Add(-time.Minute),
		EndTime:   clock.Now().Add(time.Hour),
		AutoStart: true,
	})
	if err != nil {
		t.Fatalf("ScheduleTest() error = %v", err)
	}

	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 0 {
		t.Error("scan deployed a test with no definition")
	}
	// The broken schedule is consumed, not retried forever.
	eng.Activator().RunOnce(context.Background())
}

func TestActivator_ManualScheduleIgnored(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eng := newTestEngine(t, nil, WithClock(clock.Now))

	def := defWith("manual", []string{"s"}, nil)
	if err := eng.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition() error = %v", err)
	}
	err := eng.ScheduleTest("manual", models.TestSchedule{
		SlotID:    "slot_01",
		StartTime: clock.Now().Add(-time.Minute),
		EndTime:   clock.Now().Add(time.Hour),
		AutoStart: false,
	})
	if err != nil {
		t.Fatalf("ScheduleTest() error = %v", err)
	}

	eng.Activator().RunOnce(context.Background())
	if eng.Status().OccupiedSlots != 0 {
		t.Error("activator deployed a schedule without auto-start")
	}
}
