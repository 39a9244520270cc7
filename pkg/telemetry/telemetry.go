// Package telemetry carries lifecycle events and tracing for the broker.
package telemetry

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventSessionCreated    EventType = "session.created"
	EventSessionEnded      EventType = "session.ended"
	EventSessionReclaimed  EventType = "session.reclaimed"
	EventSessionPurged     EventType = "session.purged"
	EventStreamStarted     EventType = "stream.started"
	EventStreamStopped     EventType = "stream.stopped"
	EventBrowserLost       EventType = "browser.lost"
	EventBrowserRelaunched EventType = "browser.relaunched"
	EventInputFailed       EventType = "input.failed"
)

// Event describes a lifecycle change that subscribers can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher is the narrow surface components publish through.
type Publisher interface {
	Publish(event Event)
}

const defaultBuffer = 64

type subscriber struct {
	ch    chan Event
	types []EventType
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event and the hub counts the drop.
type Hub struct {
	buffer int

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool

	dropped atomic.Int64
}

// NewHub constructs a hub whose subscriptions buffer 64 events.
func NewHub() *Hub {
	return NewHubWithBuffer(defaultBuffer)
}

// NewHubWithBuffer constructs a hub with a per-subscriber buffer size.
func NewHubWithBuffer(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{buffer: buffer, subscribers: make(map[*subscriber]struct{})}
}

// Publish delivers event to every interested subscriber.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of future events, limited to types when any
// are given, and a func that ends the subscription and closes the channel.
func (h *Hub) Subscribe(types ...EventType) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	sub := &subscriber{ch: make(chan Event, h.buffer), types: slices.Clone(types)}
	h.subscribers[sub] = struct{}{}
	return sub.ch, func() { h.unsubscribe(sub) }
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped for full buffers.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close ends every subscription and discards later publications.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, sub)
	}
}
