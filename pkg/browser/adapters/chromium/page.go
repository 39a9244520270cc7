package chromium

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/odvcencio/browsercast/pkg/browser"
)

type browserContext struct {
	h         *handle
	incognito *rod.Browser
	closed    atomic.Bool
}

func (c *browserContext) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if c.h.stale() {
		return nil, browser.ErrHandleStale
	}
	rp, err := c.incognito.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, c.h.translate("create page", err)
	}
	rp = rp.Context(c.h.ctx)
	p := &page{h: c.h, page: rp, opTimeout: c.h.cfg.OperationTimeout}

	if err := p.configure(ctx, opts); err != nil {
		_ = rp.Close()
		return nil, err
	}
	return p, nil
}

func (c *browserContext) Close() error {
	if c.closed.Swap(true) || c.h.stale() {
		return nil
	}
	return c.h.translate("close context", c.incognito.Close())
}

type page struct {
	h         *handle
	page      *rod.Page
	opTimeout time.Duration
	closed    atomic.Bool

	mu      sync.Mutex
	pointer proto.Point
}

func (p *page) configure(ctx context.Context, opts browser.PageOptions) error {
	rp := p.page.Context(ctx)
	vp := opts.Viewport
	if vp.DeviceScaleFactor == 0 {
		vp.DeviceScaleFactor = 1
	}
	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            false,
	}); err != nil {
		return p.h.translate("set viewport", err)
	}
	if opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: opts.Locale}).Call(rp); err != nil {
			return p.h.translate("set locale", err)
		}
	}
	if opts.AcceptLanguage != "" {
		if _, err := rp.SetExtraHeaders([]string{"Accept-Language", opts.AcceptLanguage}); err != nil {
			return p.h.translate("set headers", err)
		}
	}
	return nil
}

// scoped returns the page bound to ctx, bounded by the operation timeout.
func (p *page) scoped(ctx context.Context) (*rod.Page, context.CancelFunc, error) {
	if p.h.stale() {
		return nil, nil, browser.ErrHandleStale
	}
	if p.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opTimeout)
		return p.page.Context(ctx), cancel, nil
	}
	return p.page.Context(ctx), func() {}, nil
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if p.h.stale() {
		return browser.ErrHandleStale
	}
	rp := p.page.Context(ctx)
	wait := rp.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := rp.Navigate(url); err != nil {
		return p.h.translate("navigate", err)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return p.h.translate("navigate", err)
	}
	return nil
}

func (p *page) AddStyle(ctx context.Context, css string) error {
	rp, cancel, err := p.scoped(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return p.h.translate("add style", rp.AddStyleTag("", css))
}

func (p *page) Eval(ctx context.Context, js string) error {
	rp, cancel, err := p.scoped(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = rp.Eval(js)
	return p.h.translate("eval", err)
}

func (p *page) StartScreencast(ctx context.Context, opts browser.StreamOptions) (browser.CaptureSource, error) {
	if p.h.stale() {
		return nil, browser.ErrHandleStale
	}
	return startScreencast(ctx, p, opts)
}

func (p *page) Close() error {
	if p.closed.Swap(true) || p.h.stale() {
		return nil
	}
	err := p.page.Close()
	if browser.IsClosedError(err) {
		return nil
	}
	return p.h.translate("close page", err)
}
