package chromium

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/odvcencio/browsercast/pkg/browser"
)

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Backspace":  input.Backspace,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	" ":          input.Space,
}

// resolveKey maps a canonical key value onto a rod key. Printable ASCII
// characters map directly; anything else has no key definition.
func resolveKey(name string) (input.Key, bool) {
	if k, ok := namedKeys[name]; ok {
		return k, true
	}
	if utf8.RuneCountInString(name) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(name)
	if r < 0x20 || r > 0x7e {
		return 0, false
	}
	return input.Key(r), true
}

func toButton(b browser.MouseButton) proto.InputMouseButton {
	switch b {
	case browser.MouseButtonRight:
		return proto.InputMouseButtonRight
	case browser.MouseButtonMiddle:
		return proto.InputMouseButtonMiddle
	default:
		return proto.InputMouseButtonLeft
	}
}

// cdpCaller is the part of a context-bound rod page that sends commands.
// Every request issued through it runs under the page's context.
type cdpCaller interface {
	proto.Client
	proto.Contextable
}

type cdpRequest interface {
	Call(c proto.Client) error
}

// dispatchInput sends reqs in order and stops at the first failure or once
// the caller's context is done.
func dispatchInput(c cdpCaller, reqs ...cdpRequest) error {
	for _, req := range reqs {
		if err := c.GetContext().Err(); err != nil {
			return err
		}
		if err := req.Call(c); err != nil {
			return err
		}
	}
	return nil
}

func mouseMoved(at proto.Point) cdpRequest {
	return proto.InputDispatchMouseEvent{
		Type:   proto.InputDispatchMouseEventTypeMouseMoved,
		X:      at.X,
		Y:      at.Y,
		Button: proto.InputMouseButtonNone,
	}
}

func clickEvents(at proto.Point, button proto.InputMouseButton) []cdpRequest {
	return []cdpRequest{
		mouseMoved(at),
		proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMousePressed, X: at.X, Y: at.Y,
			Button: button, ClickCount: 1,
		},
		proto.InputDispatchMouseEvent{
			Type: proto.InputDispatchMouseEventTypeMouseReleased, X: at.X, Y: at.Y,
			Button: button, ClickCount: 1,
		},
	}
}

func wheelEvent(at proto.Point, deltaX, deltaY float64) cdpRequest {
	return proto.InputDispatchMouseEvent{
		Type:   proto.InputDispatchMouseEventTypeMouseWheel,
		X:      at.X,
		Y:      at.Y,
		DeltaX: deltaX,
		DeltaY: deltaY,
	}
}

func keyEvents(k input.Key, down, up bool) []cdpRequest {
	var reqs []cdpRequest
	if down {
		reqs = append(reqs, k.Encode(proto.InputDispatchKeyEventTypeKeyDown, 0))
	}
	if up {
		reqs = append(reqs, k.Encode(proto.InputDispatchKeyEventTypeKeyUp, 0))
	}
	return reqs
}

// send issues reqs on the page bound to ctx and the operation timeout.
func (p *page) send(ctx context.Context, op string, reqs ...cdpRequest) error {
	rp, cancel, err := p.scoped(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return p.h.translate(op, dispatchInput(rp, reqs...))
}

func (p *page) setPointer(at proto.Point) {
	p.mu.Lock()
	p.pointer = at
	p.mu.Unlock()
}

func (p *page) lastPointer() proto.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pointer
}

func (p *page) MouseMove(ctx context.Context, x, y float64) error {
	at := proto.Point{X: x, Y: y}
	if err := p.send(ctx, "mouse move", mouseMoved(at)); err != nil {
		return err
	}
	p.setPointer(at)
	return nil
}

func (p *page) Click(ctx context.Context, x, y float64, button browser.MouseButton) error {
	at := proto.Point{X: x, Y: y}
	if err := p.send(ctx, "click", clickEvents(at, toButton(button))...); err != nil {
		return err
	}
	p.setPointer(at)
	return nil
}

// Scroll wheels at the last pointer position.
func (p *page) Scroll(ctx context.Context, deltaX, deltaY float64) error {
	return p.send(ctx, "scroll", wheelEvent(p.lastPointer(), deltaX, deltaY))
}

func (p *page) InsertText(ctx context.Context, text string) error {
	return p.send(ctx, "insert text", proto.InputInsertText{Text: text})
}

func (p *page) KeyDown(ctx context.Context, key string) error {
	return p.key(ctx, key, "key down", true, false)
}

func (p *page) KeyUp(ctx context.Context, key string) error {
	return p.key(ctx, key, "key up", false, true)
}

// KeyPress falls back to text insertion for single characters that have no
// key definition, such as non-ASCII letters from a mobile keyboard.
func (p *page) KeyPress(ctx context.Context, key string) error {
	if _, ok := resolveKey(key); !ok && utf8.RuneCountInString(key) == 1 {
		return p.InsertText(ctx, key)
	}
	return p.key(ctx, key, "key press", true, true)
}

func (p *page) key(ctx context.Context, key, op string, down, up bool) error {
	if p.h.stale() {
		return browser.ErrHandleStale
	}
	k, ok := resolveKey(key)
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.send(ctx, op, keyEvents(k, down, up)...)
}
