// Package browsertest provides an in-memory browser engine for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// Launcher hands out fake handles. FailNext makes the next n launches fail.
type Launcher struct {
	mu       sync.Mutex
	handles  []*Handle
	failNext int
	launches int
	launched chan *Handle
}

// NewLauncher creates a launcher.
func NewLauncher() *Launcher {
	return &Launcher{launched: make(chan *Handle, 16)}
}

// FailNext makes the next n Launch calls return an error.
func (l *Launcher) FailNext(n int) {
	l.mu.Lock()
	l.failNext = n
	l.mu.Unlock()
}

func (l *Launcher) Launch(ctx context.Context) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.failNext > 0 {
		l.failNext--
		return nil, errors.New("chromium exited during startup")
	}
	h := NewHandle()
	l.handles = append(l.handles, h)
	select {
	case l.launched <- h:
	default:
	}
	return h, nil
}

// Launched receives every handle successfully launched.
func (l *Launcher) Launched() <-chan *Handle {
	return l.launched
}

// Launches returns the number of Launch calls, failed ones included.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Latest returns the most recent handle, or nil.
func (l *Launcher) Latest() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

// Handle is a fake browser process.
type Handle struct {
	lost     chan struct{}
	lostOnce sync.Once
	closed   atomic.Bool

	mu       sync.Mutex
	pingErr  error
	contexts []*Context

	// PageHook, when set, configures every page opened on this handle.
	PageHook func(*Page)
}

// NewHandle returns a live handle.
func NewHandle() *Handle {
	return &Handle{lost: make(chan struct{})}
}

// Crash simulates the process disconnecting.
func (h *Handle) Crash() {
	h.lostOnce.Do(func() { close(h.lost) })
}

// SetPingError makes health probes fail with err (nil restores health).
func (h *Handle) SetPingError(err error) {
	h.mu.Lock()
	h.pingErr = err
	h.mu.Unlock()
}

// Stale reports whether the handle has been lost or closed.
func (h *Handle) Stale() bool {
	if h.closed.Load() {
		return true
	}
	select {
	case <-h.lost:
		return true
	default:
		return false
	}
}

// Contexts returns every context opened on the handle.
func (h *Handle) Contexts() []*Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Context(nil), h.contexts...)
}

func (h *Handle) NewContext(ctx context.Context) (browser.Context, error) {
	if h.Stale() {
		return nil, browser.ErrHandleStale
	}
	c := &Context{handle: h}
	h.mu.Lock()
	h.contexts = append(h.contexts, c)
	h.mu.Unlock()
	return c, nil
}

func (h *Handle) Lost() <-chan struct{} {
	return h.lost
}

func (h *Handle) Ping(ctx context.Context) error {
	if h.Stale() {
		return browser.ErrHandleStale
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pingErr
}

func (h *Handle) Close() error {
	h.closed.Store(true)
	return nil
}

// Context is a fake isolated browser context.
type Context struct {
	handle *Handle
	closes atomic.Int32

	mu    sync.Mutex
	pages []*Page
}

// CloseCount returns how many times Close was called.
func (c *Context) CloseCount() int {
	return int(c.closes.Load())
}

// Pages returns the pages opened in the context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

func (c *Context) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if c.handle.Stale() {
		return nil, browser.ErrHandleStale
	}
	if c.closes.Load() > 0 {
		return nil, errors.New("target closed")
	}
	p := &Page{handle: c.handle, Options: opts}
	if c.handle.PageHook != nil {
		c.handle.PageHook(p)
	}
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p, nil
}

func (c *Context) Close() error {
	if c.closes.Add(1) > 1 {
		return errors.New("target closed")
	}
	for _, p := range c.Pages() {
		p.closed.Store(true)
	}
	return nil
}
