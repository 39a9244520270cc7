package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestHub_PublishStampsTime(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	ch, unsub := hub.Subscribe()
	defer unsub()

	hub.Publish(Event{Type: EventSessionCreated, SessionID: "sess-1", Data: map[string]any{"platform": "x"}})
	ev := receive(t, ch)
	assert.Equal(t, EventSessionCreated, ev.Type)
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.False(t, ev.Timestamp.IsZero())

	preset := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(Event{Type: EventSessionEnded, Timestamp: preset})
	assert.Equal(t, preset, receive(t, ch).Timestamp)
}

func TestHub_FilteredSubscription(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	all, unsubAll := hub.Subscribe()
	defer unsubAll()
	browserOnly, unsubBrowser := hub.Subscribe(EventBrowserLost, EventBrowserRelaunched)
	defer unsubBrowser()

	hub.Publish(Event{Type: EventStreamStarted})
	hub.Publish(Event{Type: EventBrowserLost})

	assert.Equal(t, EventStreamStarted, receive(t, all).Type)
	assert.Equal(t, EventBrowserLost, receive(t, all).Type)
	assert.Equal(t, EventBrowserLost, receive(t, browserOnly).Type)
	assert.Empty(t, browserOnly)
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.Subscribers())
}

func TestHub_CountsDrops(t *testing.T) {
	hub := NewHubWithBuffer(4)
	defer hub.Close()
	ch, unsub := hub.Subscribe()
	defer unsub()

	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: EventStreamStopped})
	}
	assert.Len(t, ch, 4)
	assert.Equal(t, int64(6), hub.Dropped())
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.Subscribe()
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		hub.Publish(Event{Type: EventBrowserLost})
		hub.Close()
	})

	late, unsub := hub.Subscribe()
	unsub()
	_, ok = <-late
	assert.False(t, ok)
}

func TestHub_NilSafe(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() {
		hub.Publish(Event{Type: EventSessionCreated})
		hub.Close()
	})
	assert.Zero(t, hub.Dropped())
}
