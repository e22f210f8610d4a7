package models

import "time"

// Slot is one of a fixed number of concurrent execution bays a test can
// occupy. Slots are created once at engine construction and toggle between
// free and occupied for the engine's lifetime.
type Slot struct {
	ID             string `json:"id"`
	OccupantTestID string `json:"occupantTestId,omitempty"`
	Blocked        bool   `json:"blocked"`
}

// Free reports whether the slot can accept a test.
func (s Slot) Free() bool {
	return !s.Blocked && s.OccupantTestID == ""
}

// Deployment records an admitted test: which slot it holds and what traffic
// it was granted. Owned exclusively by the admission engine.
type Deployment struct {
	TestID            string            `json:"testId"`
	SlotID            string            `json:"slotId"`
	TrafficAllocation TrafficAllocation `json:"trafficAllocation"`
	DeployedAt        time.Time         `json:"deployedAt"`
}

// TrafficAllocation is the share of visitor traffic granted to a test.
type TrafficAllocation struct {
	// Percentage of total traffic currently routed to the test.
	Percentage float64 `json:"percentage"`

	// Segment is the test's primary audience segment.
	Segment string `json:"segment,omitempty"`

	// TestSlots lists the slots serving the test.
	TestSlots []string `json:"testSlots,omitempty"`

	// Overlaps lists IDs of active tests this allocation contends with.
	Overlaps []string `json:"overlaps,omitempty"`
}

// TestSchedule registers a future or deferred activation. Registration is
// not itself an admission decision: when AutoStart is set, a companion
// activation step deploys the test once StartTime elapses.
type TestSchedule struct {
	TestID    string    `json:"testId"`
	SlotID    string    `json:"slotId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Priority  int       `json:"priority,omitempty"`

	// Dependencies are advisory; the engine does not enforce ordering.
	Dependencies []string `json:"dependencies,omitempty"`

	AutoStart bool `json:"autoStart"`

	// Recurrence is an optional cron expression. After the schedule's window
	// closes, the next activation window is re-armed from it.
	Recurrence string `json:"recurrence,omitempty"`
}
