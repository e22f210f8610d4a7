package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// cronParser accepts standard 5-field cron expressions plus descriptors
// (@daily and friends) for schedule recurrence.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule registration errors.
var (
	ErrScheduleSlotRequired = errors.New("schedule requires a slot id")
	ErrScheduleWindow       = errors.New("schedule start time must precede end time")
)

// ScheduleBook registers future and deferred activations. Registration is
// synchronous and is not an admission decision; activation is driven by the
// Activator once a schedule's start time elapses. Dependencies are advisory
// and never enforced here.
type ScheduleBook struct {
	entries map[string]*scheduleEntry
}

type scheduleEntry struct {
	schedule  models.TestSchedule
	activated bool
	retired   bool
	cronSched cron.Schedule
}

// NewScheduleBook creates an empty registry.
func NewScheduleBook() *ScheduleBook {
	return &ScheduleBook{entries: make(map[string]*scheduleEntry)}
}

// Register validates and stores a schedule for testID. A later registration
// for the same test replaces the earlier one.
func (b *ScheduleBook) Register(testID string, schedule models.TestSchedule) error {
	if schedule.SlotID == "" {
		return ErrScheduleSlotRequired
	}
	if !schedule.StartTime.Before(schedule.EndTime) {
		return ErrScheduleWindow
	}

	entry := &scheduleEntry{schedule: schedule}
	entry.schedule.TestID = testID
	if schedule.Recurrence != "" {
		parsed, err := cronParser.Parse(schedule.Recurrence)
		if err != nil {
			return fmt.Errorf("invalid recurrence %q: %w", schedule.Recurrence, err)
		}
		entry.cronSched = parsed
	}
	b.entries[testID] = entry
	return nil
}

// Due returns the schedules whose start time has elapsed, that auto-start,
// and that have not yet been activated, ordered by priority (highest first)
// then start time.
func (b *ScheduleBook) Due(now time.Time) []models.TestSchedule {
	var due []models.TestSchedule
	for _, entry := range b.entries {
		if entry.retired || entry.activated || !entry.schedule.AutoStart {
			continue
		}
		if entry.schedule.StartTime.After(now) {
			continue
		}
		due = append(due, entry.schedule)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].StartTime.Before(due[j].StartTime)
	})
	return due
}

// MarkActivated records that a schedule's deployment happened.
func (b *ScheduleBook) MarkActivated(testID string) {
	if entry, ok := b.entries[testID]; ok {
		entry.activated = true
	}
}

// Expired returns the test IDs of activated schedules whose end time has
// passed.
func (b *ScheduleBook) Expired(now time.Time) []string {
	var out []string
	for id, entry := range b.entries {
		if entry.retired || !entry.activated {
			continue
		}
		if entry.schedule.EndTime.After(now) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Retire closes out a schedule after its window ended. Recurring schedules
// are re-armed with the next window of the same duration instead; Retire
// reports whether the schedule was re-armed.
func (b *ScheduleBook) Retire(testID string, now time.Time) bool {
	entry, ok := b.entries[testID]
	if !ok {
		return false
	}
	if entry.cronSched == nil {
		entry.retired = true
		return false
	}
	window := entry.schedule.EndTime.Sub(entry.schedule.StartTime)
	next := entry.cronSched.Next(now)
	entry.schedule.StartTime = next
	entry.schedule.EndTime = next.Add(window)
	entry.activated = false
	return true
}

// Remove drops a schedule entirely.
func (b *ScheduleBook) Remove(testID string) {
	delete(b.entries, testID)
}

// Get returns the registered schedule for testID.
func (b *ScheduleBook) Get(testID string) (models.TestSchedule, bool) {
	entry, ok := b.entries[testID]
	if !ok {
		return models.TestSchedule{}, false
	}
	return entry.schedule, true
}

// Len reports the number of registered schedules.
func (b *ScheduleBook) Len() int { return len(b.entries) }
