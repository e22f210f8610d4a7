package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/splitdeck/internal/engine"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func event(eventType engine.EventType, at time.Time, data map[string]any) engine.Event {
	return engine.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}
}

func TestJournal_RecordAndQueryByType(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	deployed := event(engine.EventTestDeployed, base, map[string]any{"testId": "a"})
	removed := event(engine.EventTestRemoved, base.Add(time.Minute), map[string]any{"testId": "a"})
	for _, evt := range []engine.Event{deployed, removed} {
		if err := j.Record(evt); err != nil {
			t.Fatalf("Record(%s) error = %v", evt.Type, err)
		}
	}

	got, err := j.EventsByType(engine.EventTestDeployed, 10)
	if err != nil {
		t.Fatalf("EventsByType() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].ID != deployed.ID {
		t.Errorf("ID = %v, want %v", got[0].ID, deployed.ID)
	}
	if got[0].Data["testId"] != "a" {
		t.Errorf("Data = %v", got[0].Data)
	}
	if !got[0].Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, base)
	}
}

func TestJournal_DuplicateIDIgnored(t *testing.T) {
	j := openTestJournal(t)
	evt := event(engine.EventTestDeployed, time.Now(), nil)

	if err := j.Record(evt); err != nil {
		t.Fatalf("first Record() error = %v", err)
	}
	if err := j.Record(evt); err != nil {
		t.Fatalf("duplicate Record() error = %v", err)
	}

	got, err := j.EventsByType(engine.EventTestDeployed, 10)
	if err != nil {
		t.Fatalf("EventsByType() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("events = %d, want 1 after duplicate insert", len(got))
	}
}

func TestJournal_EventsBetween(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		evt := event(engine.EventMonitoringUpdate, base.Add(time.Duration(i)*time.Minute), nil)
		if err := j.Record(evt); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.EventsBetween(base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("EventsBetween() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Error("events not ordered oldest first")
		}
	}
}

func TestJournal_FollowDrainsSubscription(t *testing.T) {
	j := openTestJournal(t)

	events := make(chan engine.Event, 8)
	j.Follow(context.Background(), events)

	sent := event(engine.EventFrameworkDestroyed, time.Now(), map[string]any{"reason": "shutdown"})
	events <- sent
	close(events)
	j.Wait()

	got, err := j.EventsByType(engine.EventFrameworkDestroyed, 1)
	if err != nil {
		t.Fatalf("EventsByType() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != sent.ID {
		t.Errorf("followed event not journaled: %+v", got)
	}
}

func TestJournal_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}

	evt := event(engine.EventFrameworkInitialized, time.Now(), nil)
	if err := j.Record(evt); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.EventsByType(engine.EventFrameworkInitialized, 1)
	if err != nil {
		t.Fatalf("EventsByType() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("events after reopen = %d, want 1", len(got))
	}
}
