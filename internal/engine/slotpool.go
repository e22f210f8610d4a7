package engine

import (
	"fmt"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// SlotPool is a fixed-capacity registry of named execution slots. Slot IDs
// are dense and deterministic (slot_01..slot_NN), generated once at
// construction. The pool is not internally locked: the engine serializes
// access under its single admission mutex so that slot acquisition and
// traffic allocation commit atomically.
type SlotPool struct {
	slots []*models.Slot
	index map[string]*models.Slot
}

// NewSlotPool creates a pool with the given capacity.
func NewSlotPool(capacity int) *SlotPool {
	if capacity < 0 {
		capacity = 0
	}
	p := &SlotPool{index: make(map[string]*models.Slot, capacity)}
	for i := 0; i < capacity; i++ {
		slot := &models.Slot{ID: slotID(i + 1)}
		p.slots = append(p.slots, slot)
		p.index[slot.ID] = slot
	}
	return p
}

func slotID(n int) string {
	return fmt.Sprintf("slot_%02d", n)
}

// Acquire reserves a slot for testID. The preferred slot is used when free;
// otherwise the lowest-numbered free slot is taken. Returns false when the
// pool is exhausted.
func (p *SlotPool) Acquire(testID, preferred string) (string, bool) {
	if preferred != "" {
		if slot, ok := p.index[preferred]; ok && slot.Free() {
			slot.OccupantTestID = testID
			return slot.ID, true
		}
	}
	for _, slot := range p.slots {
		if slot.Free() {
			slot.OccupantTestID = testID
			return slot.ID, true
		}
	}
	return "", false
}

// Release frees a slot and returns its previous occupant. Releasing an
// already-free or unknown slot is a no-op.
func (p *SlotPool) Release(slotID string) (string, bool) {
	slot, ok := p.index[slotID]
	if !ok || slot.OccupantTestID == "" {
		return "", false
	}
	occupant := slot.OccupantTestID
	slot.OccupantTestID = ""
	return occupant, true
}

// Resize grows or shrinks the pool to capacity. Shrinking removes free
// slots from the highest-numbered end and never drops an occupied slot;
// the effective capacity after shrinking may therefore exceed the request.
func (p *SlotPool) Resize(capacity int) int {
	if capacity < 0 {
		capacity = 0
	}
	for len(p.slots) < capacity {
		slot := &models.Slot{ID: slotID(len(p.slots) + 1)}
		p.slots = append(p.slots, slot)
		p.index[slot.ID] = slot
	}
	for len(p.slots) > capacity {
		last := p.slots[len(p.slots)-1]
		if !last.Free() {
			break
		}
		delete(p.index, last.ID)
		p.slots = p.slots[:len(p.slots)-1]
	}
	return len(p.slots)
}

// SlotOf returns the slot currently held by testID.
func (p *SlotPool) SlotOf(testID string) (string, bool) {
	for _, slot := range p.slots {
		if slot.OccupantTestID == testID {
			return slot.ID, true
		}
	}
	return "", false
}

// Capacity is the total slot count.
func (p *SlotPool) Capacity() int { return len(p.slots) }

// Occupied is the count of slots holding a test.
func (p *SlotPool) Occupied() int {
	n := 0
	for _, slot := range p.slots {
		if slot.OccupantTestID != "" {
			n++
		}
	}
	return n
}

// Available is the count of free slots.
func (p *SlotPool) Available() int {
	n := 0
	for _, slot := range p.slots {
		if slot.Free() {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all slots in ID order.
func (p *SlotPool) Snapshot() []models.Slot {
	out := make([]models.Slot, 0, len(p.slots))
	for _, slot := range p.slots {
		out = append(out, *slot)
	}
	return out
}
