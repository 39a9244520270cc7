package browser

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/odvcencio/browsercast/pkg/telemetry"
)

// Metrics tracks broker counters shared by the supervisor, registry,
// pipeline and input router.
type Metrics struct {
	// Session counts
	SessionsCreated   atomic.Int64
	SessionsEnded     atomic.Int64
	SessionsReclaimed atomic.Int64
	ActiveSessions    atomic.Int64
	NavigationFailed  atomic.Int64

	// Streaming
	ActiveStreams     atomic.Int64
	StreamsStarted    atomic.Int64
	StreamStartFailed atomic.Int64
	FramesDelivered   atomic.Int64
	FrameBytes        atomic.Int64
	FrameLatencySum   atomic.Int64 // nanoseconds, ack to delivered
	FrameLatencyCount atomic.Int64

	// Input
	InputDispatched atomic.Int64
	InputDropped    atomic.Int64
	InputFailed     atomic.Int64

	// Browser process
	BrowserLost       atomic.Int64
	BrowserRelaunch   atomic.Int64
	LaunchFailures    atomic.Int64
	BrowserGeneration atomic.Uint64

	mu  sync.RWMutex
	hub telemetry.Publisher
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// EnableTelemetry wires lifecycle events to a publisher.
func (m *Metrics) EnableTelemetry(hub telemetry.Publisher) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.hub = hub
	m.mu.Unlock()
}

// RecordSessionCreated increments session creation counters.
func (m *Metrics) RecordSessionCreated(sessionID, platform string, navLatency time.Duration) {
	if m == nil {
		return
	}
	m.SessionsCreated.Add(1)
	m.ActiveSessions.Add(1)
	m.publish(telemetry.EventSessionCreated, sessionID, map[string]any{
		"platform":      platform,
		"navigation_ms": navLatency.Milliseconds(),
	})
}

// RecordNavigationFailed counts a session creation that never produced a session.
func (m *Metrics) RecordNavigationFailed() {
	if m == nil {
		return
	}
	m.NavigationFailed.Add(1)
}

// RecordSessionEnded records a removal. reason is "ended", "idle" or "purged".
func (m *Metrics) RecordSessionEnded(sessionID, reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.SessionsEnded.Add(1)
	m.ActiveSessions.Add(-1)
	eventType := telemetry.EventSessionEnded
	switch reason {
	case "idle":
		m.SessionsReclaimed.Add(1)
		eventType = telemetry.EventSessionReclaimed
	case "purged":
		eventType = telemetry.EventSessionPurged
	}
	m.publish(eventType, sessionID, map[string]any{
		"reason":      reason,
		"lifetime_ms": lifetime.Milliseconds(),
	})
}

// RecordStreamStarted counts a capture that began successfully.
func (m *Metrics) RecordStreamStarted(sessionID string) {
	if m == nil {
		return
	}
	m.StreamsStarted.Add(1)
	m.ActiveStreams.Add(1)
	m.publish(telemetry.EventStreamStarted, sessionID, nil)
}

// RecordStreamStartFailed counts a capture that could not be established.
func (m *Metrics) RecordStreamStartFailed() {
	if m == nil {
		return
	}
	m.StreamStartFailed.Add(1)
}

// RecordStreamStopped is called once per started stream.
func (m *Metrics) RecordStreamStopped(sessionID string, frames int64) {
	if m == nil {
		return
	}
	m.ActiveStreams.Add(-1)
	m.publish(telemetry.EventStreamStopped, sessionID, map[string]any{"frames": frames})
}

// RecordFrameDelivered tracks frame size and delivery latency.
func (m *Metrics) RecordFrameDelivered(size int, latency time.Duration) {
	if m == nil {
		return
	}
	m.FramesDelivered.Add(1)
	m.FrameBytes.Add(int64(size))
	m.FrameLatencySum.Add(latency.Nanoseconds())
	m.FrameLatencyCount.Add(1)
}

// RecordInput tracks an input event outcome.
func (m *Metrics) RecordInput(sessionID, kind string, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.InputDispatched.Add(1)
		return
	}
	m.InputFailed.Add(1)
	m.publish(telemetry.EventInputFailed, sessionID, map[string]any{
		"kind":  kind,
		"error": err.Error(),
	})
}

// RecordInputDropped counts an unknown event kind.
func (m *Metrics) RecordInputDropped() {
	if m == nil {
		return
	}
	m.InputDropped.Add(1)
}

// RecordBrowserLost counts a process loss.
func (m *Metrics) RecordBrowserLost(generation uint64, reason string) {
	if m == nil {
		return
	}
	m.BrowserLost.Add(1)
	m.publish(telemetry.EventBrowserLost, "", map[string]any{
		"generation": generation,
		"reason":     reason,
	})
}

// RecordBrowserLaunched records the generation now serving sessions.
func (m *Metrics) RecordBrowserLaunched(generation uint64, attempts int) {
	if m == nil {
		return
	}
	m.BrowserGeneration.Store(generation)
	if generation <= 1 {
		return
	}
	m.BrowserRelaunch.Add(1)
	m.publish(telemetry.EventBrowserRelaunched, "", map[string]any{
		"generation": generation,
		"attempts":   attempts,
	})
}

// RecordLaunchFailure counts a failed launch attempt.
func (m *Metrics) RecordLaunchFailure() {
	if m == nil {
		return
	}
	m.LaunchFailures.Add(1)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	avgFrameLatency := time.Duration(0)
	if count := m.FrameLatencyCount.Load(); count > 0 {
		avgFrameLatency = time.Duration(m.FrameLatencySum.Load() / count)
	}
	return MetricsSnapshot{
		SessionsCreated:     m.SessionsCreated.Load(),
		SessionsEnded:       m.SessionsEnded.Load(),
		SessionsReclaimed:   m.SessionsReclaimed.Load(),
		ActiveSessions:      m.ActiveSessions.Load(),
		NavigationFailed:    m.NavigationFailed.Load(),
		ActiveStreams:       m.ActiveStreams.Load(),
		StreamsStarted:      m.StreamsStarted.Load(),
		StreamStartFailed:   m.StreamStartFailed.Load(),
		FramesDelivered:     m.FramesDelivered.Load(),
		FrameBytes:          m.FrameBytes.Load(),
		AverageFrameLatency: avgFrameLatency,
		InputDispatched:     m.InputDispatched.Load(),
		InputDropped:        m.InputDropped.Load(),
		InputFailed:         m.InputFailed.Load(),
		BrowserLost:         m.BrowserLost.Load(),
		BrowserRelaunch:     m.BrowserRelaunch.Load(),
		LaunchFailures:      m.LaunchFailures.Load(),
		BrowserGeneration:   m.BrowserGeneration.Load(),
	}
}

func (m *Metrics) publish(eventType telemetry.EventType, sessionID string, data map[string]any) {
	m.mu.RLock()
	hub := m.hub
	m.mu.RUnlock()
	if hub == nil {
		return
	}
	hub.Publish(telemetry.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      data,
	})
}

// MetricsSnapshot is a point-in-time copy of broker metrics.
type MetricsSnapshot struct {
	SessionsCreated     int64
	SessionsEnded       int64
	SessionsReclaimed   int64
	ActiveSessions      int64
	NavigationFailed    int64
	ActiveStreams       int64
	StreamsStarted      int64
	StreamStartFailed   int64
	FramesDelivered     int64
	FrameBytes          int64
	AverageFrameLatency time.Duration
	InputDispatched     int64
	InputDropped        int64
	InputFailed         int64
	BrowserLost         int64
	BrowserRelaunch     int64
	LaunchFailures      int64
	BrowserGeneration   uint64
}
