package engine

import "testing"

func TestNewSlotPool_DenseIDs(t *testing.T) {
	pool := NewSlotPool(3)
	if pool.Capacity() != 3 {
		t.Fatalf("Capacity() = %d, want 3", pool.Capacity())
	}
	snapshot := pool.Snapshot()
	want := []string{"slot_01", "slot_02", "slot_03"}
	for i, slot := range snapshot {
		if slot.ID != want[i] {
			t.Errorf("slot[%d].ID = %q, want %q", i, slot.ID, want[i])
		}
		if !slot.Free() {
			t.Errorf("slot %q not free at construction", slot.ID)
		}
	}
}

func TestSlotPool_AcquirePreferred(t *testing.T) {
	pool := NewSlotPool(5)
	slotID, ok := pool.Acquire("test-a", "slot_03")
	if !ok || slotID != "slot_03" {
		t.Fatalf("Acquire(preferred slot_03) = %q, %v", slotID, ok)
	}

	// Occupied preferred slot falls back to the lowest free slot.
	slotID, ok = pool.Acquire("test-b", "slot_03")
	if !ok {
		t.Fatal("second acquire failed")
	}
	if slotID == "slot_03" {
		t.Error("occupied slot handed out twice")
	}
	if slotID != "slot_01" {
		t.Errorf("fallback slot = %q, want slot_01", slotID)
	}
}

func TestSlotPool_AcquireScansAscending(t *testing.T) {
	pool := NewSlotPool(3)
	for i, want := range []string{"slot_01", "slot_02", "slot_03"} {
		got, ok := pool.Acquire("t", "")
		if !ok || got != want {
			t.Fatalf("acquire %d = %q, %v, want %q", i, got, ok, want)
		}
	}
	if _, ok := pool.Acquire("t", ""); ok {
		t.Error("acquire succeeded on exhausted pool")
	}
}

func TestSlotPool_Release(t *testing.T) {
	pool := NewSlotPool(2)
	slotID, _ := pool.Acquire("test-a", "")

	occupant, ok := pool.Release(slotID)
	if !ok || occupant != "test-a" {
		t.Fatalf("Release() = %q, %v, want test-a, true", occupant, ok)
	}
	if pool.Available() != 2 {
		t.Errorf("Available() = %d after release, want 2", pool.Available())
	}

	// Releasing a free slot is a no-op, not an error.
	if _, ok := pool.Release(slotID); ok {
		t.Error("releasing a free slot reported an occupant")
	}
	if _, ok := pool.Release("slot_99"); ok {
		t.Error("releasing an unknown slot reported an occupant")
	}
}

func TestSlotPool_Counts(t *testing.T) {
	pool := NewSlotPool(4)
	pool.Acquire("a", "")
	pool.Acquire("b", "")

	if got := pool.Occupied(); got != 2 {
		t.Errorf("Occupied() = %d, want 2", got)
	}
	if got := pool.Available(); got != 2 {
		t.Errorf("Available() = %d, want 2", got)
	}
	if pool.Occupied()+pool.Available() != pool.Capacity() {
		t.Error("occupied + available != capacity")
	}
}

func TestSlotPool_Resize(t *testing.T) {
	pool := NewSlotPool(2)
	if got := pool.Resize(4); got != 4 {
		t.Fatalf("Resize(4) = %d", got)
	}
	if _, ok := pool.Acquire("a", "slot_04"); !ok {
		t.Fatal("new slot not acquirable")
	}

	// Shrinking keeps occupied slots: slot_04 is held, so capacity stays 4.
	if got := pool.Resize(1); got != 4 {
		t.Errorf("Resize(1) with occupied tail = %d, want 4", got)
	}

	pool.Release("slot_04")
	if got := pool.Resize(1); got != 1 {
		t.Errorf("Resize(1) after release = %d, want 1", got)
	}
}

func TestSlotPool_SlotOf(t *testing.T) {
	pool := NewSlotPool(2)
	pool.Acquire("test-a", "slot_02")

	slotID, ok := pool.SlotOf("test-a")
	if !ok || slotID != "slot_02" {
		t.Errorf("SlotOf(test-a) = %q, %v", slotID, ok)
	}
	if _, ok := pool.SlotOf("missing"); ok {
		t.Error("SlotOf(missing) found a slot")
	}
}
