package browsertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// InputEvent is one call recorded on a Page's input surface.
type InputEvent struct {
	Kind   string
	X, Y   float64
	Button browser.MouseButton
	Text   string
	Key    string
}

// Page is a fake tab that records what was done to it.
type Page struct {
	handle  *Handle
	Options browser.PageOptions

	// Errors returned by the matching operations when set.
	NavigateErr   error
	NavigateDelay time.Duration
	ScreencastErr error
	InputErr      error

	closed atomic.Bool
	closes atomic.Int32

	mu       sync.Mutex
	url      string
	styles   []string
	scripts  []string
	inputs   []InputEvent
	captures []*Capture
}

// CloseCount returns how many times Close was called.
func (p *Page) CloseCount() int {
	return int(p.closes.Load())
}

// URL returns the last navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Styles returns injected stylesheets.
func (p *Page) Styles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.styles...)
}

// Scripts returns evaluated scripts.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// Inputs returns recorded input events.
func (p *Page) Inputs() []InputEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]InputEvent(nil), p.inputs...)
}

// Captures returns every capture started on the page.
func (p *Page) Captures() []*Capture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Capture(nil), p.captures...)
}

// LastCapture returns the most recent capture, or nil.
func (p *Page) LastCapture() *Capture {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.captures) == 0 {
		return nil
	}
	return p.captures[len(p.captures)-1]
}

func (p *Page) check() error {
	if p.handle != nil && p.handle.Stale() {
		return browser.ErrHandleStale
	}
	if p.closed.Load() {
		return errors.New("target closed")
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.check(); err != nil {
		return err
	}
	if p.NavigateDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.NavigateDelay):
		}
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) AddStyle(ctx context.Context, css string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	p.styles = append(p.styles, css)
	p.mu.Unlock()
	return nil
}

func (p *Page) Eval(ctx context.Context, js string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scripts = append(p.scripts, js)
	p.mu.Unlock()
	return nil
}

func (p *Page) StartScreencast(ctx context.Context, opts browser.StreamOptions) (browser.CaptureSource, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if p.ScreencastErr != nil {
		return nil, p.ScreencastErr
	}
	c := NewCapture(opts)
	p.mu.Lock()
	p.captures = append(p.captures, c)
	p.mu.Unlock()
	return c, nil
}

func (p *Page) Close() error {
	p.closes.Add(1)
	if p.closed.Swap(true) {
		return errors.New("target closed")
	}
	return nil
}

func (p *Page) record(ev InputEvent) error {
	if err := p.check(); err != nil {
		return err
	}
	if p.InputErr != nil {
		return p.InputErr
	}
	p.mu.Lock()
	p.inputs = append(p.inputs, ev)
	p.mu.Unlock()
	return nil
}

func (p *Page) MouseMove(ctx context.Context, x, y float64) error {
	return p.record(InputEvent{Kind: "mousemove", X: x, Y: y})
}

func (p *Page) Click(ctx context.Context, x, y float64, button browser.MouseButton) error {
	return p.record(InputEvent{Kind: "click", X: x, Y: y, Button: button})
}

func (p *Page) Scroll(ctx context.Context, deltaX, deltaY float64) error {
	return p.record(InputEvent{Kind: "scroll", X: deltaX, Y: deltaY})
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	return p.record(InputEvent{Kind: "text", Text: text})
}

func (p *Page) KeyDown(ctx context.Context, key string) error {
	return p.record(InputEvent{Kind: "keydown", Key: key})
}

func (p *Page) KeyUp(ctx context.Context, key string) error {
	return p.record(InputEvent{Kind: "keyup", Key: key})
}

func (p *Page) KeyPress(ctx context.Context, key string) error {
	return p.record(InputEvent{Kind: "keypress", Key: key})
}
