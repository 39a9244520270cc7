package chromium

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"go.uber.org/zap"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// Launcher starts chromium processes through rod.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher creates a chromium launcher.
func NewLauncher(cfg Config, logger *zap.Logger) (*Launcher, error) {
	merged := cfg.withDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: merged, logger: logger}, nil
}

func (l *Launcher) newProcess(ctx context.Context) *launcher.Launcher {
	lnch := launcher.New().
		Context(ctx).
		Headless(!l.cfg.Headful).
		Leakless(l.cfg.Leakless)
	if l.cfg.Bin != "" {
		lnch = lnch.Bin(l.cfg.Bin)
	}
	for _, f := range l.cfg.launchFlags() {
		if f[1] == "" {
			lnch = lnch.Set(flags.Flag(f[0]))
		} else {
			lnch = lnch.Set(flags.Flag(f[0]), f[1])
		}
	}
	return lnch
}

// Launch starts a process (or dials ControlURL) and connects to it.
func (l *Launcher) Launch(ctx context.Context) (browser.Handle, error) {
	controlURL := l.cfg.ControlURL
	var proc *launcher.Launcher
	if controlURL == "" {
		// The launch context only bounds startup; the process outlives it.
		proc = l.newProcess(context.WithoutCancel(ctx))
		u, err := proc.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}
		controlURL = u
	}

	hctx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(controlURL).Context(hctx)
	if err := b.Connect(); err != nil {
		cancel()
		if proc != nil {
			proc.Kill()
		}
		return nil, fmt.Errorf("connect chromium: %w", err)
	}

	h := &handle{
		browser: b,
		proc:    proc,
		cfg:     l.cfg,
		logger:  l.logger,
		ctx:     hctx,
		cancel:  cancel,
		lost:    make(chan struct{}),
	}
	go h.watchEvents()
	l.logger.Debug("chromium connected", zap.String("control_url", controlURL))
	return h, nil
}

// handle is a live rod connection. Every derived context and page checks it
// before touching CDP so a dead process yields ErrHandleStale, not a hang.
type handle struct {
	browser *rod.Browser
	proc    *launcher.Launcher
	cfg     Config
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lost      chan struct{}
	lostOnce  sync.Once
	closed    atomic.Bool
	closeOnce sync.Once
}

// watchEvents drains the browser event stream. rod closes it when the
// websocket to the process drops.
func (h *handle) watchEvents() {
	for range h.browser.Event() {
	}
	h.lostOnce.Do(func() { close(h.lost) })
}

func (h *handle) stale() bool {
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

// translate maps a rod error to ErrHandleStale once the process is gone.
func (h *handle) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if h.stale() {
		return fmt.Errorf("%w: %s: %v", browser.ErrHandleStale, op, err)
	}
	return browser.WrapEngineError(op, err)
}

func (h *handle) NewContext(ctx context.Context) (browser.Context, error) {
	if h.stale() {
		return nil, browser.ErrHandleStale
	}
	incognito, err := h.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, h.translate("incognito", err)
	}
	return &browserContext{h: h, incognito: incognito.Context(h.ctx)}, nil
}

func (h *handle) Lost() <-chan struct{} {
	return h.lost
}

func (h *handle) Ping(ctx context.Context) error {
	if h.stale() {
		return browser.ErrHandleStale
	}
	_, err := h.browser.Context(ctx).Version()
	return h.translate("version", err)
}

func (h *handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		err = h.browser.Close()
		h.cancel()
		if h.proc != nil {
			h.proc.Kill()
			h.proc.Cleanup()
		}
	})
	if err != nil && browser.IsClosedError(err) {
		return nil
	}
	return err
}
