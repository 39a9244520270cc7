package ipc

import (
	"encoding/json"

	"github.com/odvcencio/browsercast/pkg/input"
)

// Inbound control types. Anything else is treated as an input event.
const (
	typeStartStream = "start-stream"
	typeStopStream  = "stop-stream"
	typePing        = "ping"
)

// Outbound control types.
const (
	typeStreamStarted = "stream-started"
	typeStreamStopped = "stream-stopped"
	typeSessionEnded  = "session-ended"
	typeError         = "error"
)

// Protocol error messages.
const (
	msgInvalidSession    = "Invalid session"
	msgStreamStartFailed = "Failed to start stream"
)

// message is one decoded inbound control message.
type message interface {
	session() string
}

type startStreamMessage struct{ SessionID string }

type stopStreamMessage struct{ SessionID string }

// pingMessage is a heartbeat. SessionID is optional.
type pingMessage struct{ SessionID string }

// inputMessage carries every message that is not a known control type,
// including one with no type at all.
type inputMessage struct {
	SessionID string
	Event     input.Event
}

func (m startStreamMessage) session() string { return m.SessionID }
func (m stopStreamMessage) session() string  { return m.SessionID }
func (m pingMessage) session() string        { return m.SessionID }
func (m inputMessage) session() string       { return m.SessionID }

type envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func decodeMessage(data []byte) (message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case typePing:
		return pingMessage{SessionID: env.SessionID}, nil
	case typeStartStream:
		return startStreamMessage{SessionID: env.SessionID}, nil
	case typeStopStream:
		return stopStreamMessage{SessionID: env.SessionID}, nil
	}
	var ev input.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return inputMessage{SessionID: env.SessionID, Event: ev}, nil
}

// reply is an outbound control message.
type reply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}
