// Package session tracks live remote browsing sessions and reclaims the
// browser resources they hold.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// EndedMessage is sent to an attached channel when its session is torn down.
const EndedMessage = "Session time exhausted"

// Channel is the duplex connection a session is attached to.
type Channel interface {
	ID() string
	Open() bool
	NotifyEnded(ctx context.Context, message string) error
}

// Stream is an active frame stream.
type Stream interface {
	Stop(ctx context.Context) error
}

// Session is one remote browsing session: an isolated browser context, the
// page inside it and whatever channel and stream are currently attached.
type Session struct {
	ID         string
	Platform   string
	URL        string
	Viewport   browser.Viewport
	Generation uint64
	CreatedAt  time.Time

	bctx browser.Context
	page browser.Page

	mu           sync.Mutex
	channel      Channel
	stream       Stream
	lastActivity time.Time
	closed       bool
}

// Page returns the session's page.
func (s *Session) Page() browser.Page {
	return s.page
}

// Channel returns the attached channel, or nil.
func (s *Session) Channel() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// Stream returns the active stream, or nil.
func (s *Session) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Streaming reports whether a stream is attached.
func (s *Session) Streaming() bool {
	return s.Stream() != nil
}

// LastActivity returns when the session last saw traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Info is a read-only view of a session.
type Info struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform"`
	Generation   uint64    `json:"generation"`
	Streaming    bool      `json:"streaming"`
	Attached     bool      `json:"attached"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		Platform:     s.Platform,
		Generation:   s.Generation,
		Streaming:    s.stream != nil,
		Attached:     s.channel != nil,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

// Patch changes a session's attachments. A nil field is left alone; use
// the Clear flags to detach.
type Patch struct {
	Channel      Channel
	Stream       Stream
	ClearChannel bool
	ClearStream  bool
}

func (s *Session) apply(p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch {
	case p.ClearChannel:
		s.channel = nil
	case p.Channel != nil:
		s.channel = p.Channel
	}
	switch {
	case p.ClearStream:
		s.stream = nil
	case p.Stream != nil:
		s.stream = p.Stream
	}
}

// detach marks the session closed and hands back what must be torn down.
// It returns false if the session was already closed.
func (s *Session) detach() (Channel, Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, false
	}
	s.closed = true
	ch, st := s.channel, s.stream
	s.channel, s.stream = nil, nil
	return ch, st, true
}
