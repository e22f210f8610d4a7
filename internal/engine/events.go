// Package engine implements the experiment admission and traffic
// allocation engine: slot pooling, traffic budgeting, contamination
// analysis, scheduling, portfolio analytics, and lifecycle events.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventFrameworkInitialized EventType = "framework_initialized"
	EventTestDeployed         EventType = "test_deployed"
	EventTestRemoved          EventType = "test_removed"
	EventTestScheduled        EventType = "test_scheduled"
	EventConfigurationUpdated EventType = "configuration_updated"
	EventMonitoringUpdate     EventType = "monitoring_update"
	EventPerformanceWarning   EventType = "performance_warning"
	EventFrameworkDestroyed   EventType = "framework_destroyed"
)

// Event is a single lifecycle notification.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fans lifecycle events out to subscribers. Broadcast never blocks:
// a subscriber that falls behind its channel buffer misses events.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
	now         func() time.Time
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Subscribe registers a listener. The returned cancel func must be called
// once the subscriber is done; it is safe to call after the hub closed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers. Events published after
// Close are dropped.
func (h *Hub) Publish(eventType EventType, data map[string]any) {
	if h == nil {
		return
	}
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	evt := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: h.now(),
		Data:      data,
	}
	for ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
	h.mu.RUnlock()
}

// Close rejects further publishes and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
