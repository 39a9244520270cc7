// Package stream turns a page's screencast into an acknowledgement-gated
// frame sequence delivered to a single consumer.
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/telemetry"
)

// repaintScript appends a 1px element and removes it shortly after so a
// static page still emits its first frame.
const repaintScript = `() => {
	const el = document.createElement('div');
	el.style.cssText = 'position:absolute;top:0;left:0;width:1px;height:1px;pointer-events:none;';
	(document.body || document.documentElement).appendChild(el);
	setTimeout(() => el.remove(), %d);
}`

// Capturer is the part of a page the pipeline drives.
type Capturer interface {
	StartScreencast(ctx context.Context, opts browser.StreamOptions) (browser.CaptureSource, error)
	Eval(ctx context.Context, js string) error
}

// FrameFunc consumes one frame. Returning an error means the consumer is
// gone; the pipeline stops the capture.
type FrameFunc func(frame browser.Frame) error

// Config tunes the pipeline.
type Config struct {
	Repaint     bool
	RepaintHold time.Duration
	AckTimeout  time.Duration
}

// DefaultConfig enables the initial repaint.
func DefaultConfig() Config {
	return Config{Repaint: true, RepaintHold: 100 * time.Millisecond, AckTimeout: 5 * time.Second}
}

// Pipeline starts and supervises frame streams.
type Pipeline struct {
	cfg     Config
	logger  *zap.Logger
	metrics *browser.Metrics
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config, logger *zap.Logger, metrics *browser.Metrics) *Pipeline {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultConfig().AckTimeout
	}
	if cfg.RepaintHold <= 0 {
		cfg.RepaintHold = DefaultConfig().RepaintHold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: logger, metrics: metrics}
}

// Start begins capture on page and delivers frames to onFrame until the
// returned handle is stopped or the source ends.
func (p *Pipeline) Start(ctx context.Context, sessionID string, page Capturer, opts browser.StreamOptions, onFrame FrameFunc) (*Handle, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		p.metrics.RecordStreamStartFailed()
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "stream.start")
	defer span.End()
	span.SetAttributes(telemetry.AttrSessionID.String(sessionID))

	source, err := page.StartScreencast(ctx, opts)
	if err != nil {
		telemetry.RecordError(ctx, err)
		p.metrics.RecordStreamStartFailed()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		sessionID: sessionID,
		source:    source,
		pipeline:  p,
		logger:    p.logger.With(zap.String("session", sessionID)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	p.metrics.RecordStreamStarted(sessionID)
	go h.run(loopCtx, onFrame)

	if p.cfg.Repaint {
		script := fmt.Sprintf(repaintScript, p.cfg.RepaintHold.Milliseconds())
		if err := page.Eval(ctx, script); err != nil {
			h.logger.Debug("repaint nudge failed", zap.Error(err))
		}
	}
	return h, nil
}

// Handle is one running stream.
type Handle struct {
	sessionID string
	source    browser.CaptureSource
	pipeline  *Pipeline
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	frames atomic.Int64

	sourceOnce sync.Once
	sourceErr  error
	stopOnce   sync.Once
}

// Frames returns the number of frames delivered so far.
func (h *Handle) Frames() int64 {
	return h.frames.Load()
}

// Done is closed once the delivery loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop ends the capture and waits for the delivery loop. It is idempotent
// and ignores errors from a source that is already gone.
func (h *Handle) Stop(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.stopOnce.Do(func() {
		h.stopSource(ctx)
		h.cancel()
		<-h.done
	})
	return h.sourceErr
}

func (h *Handle) stopSource(ctx context.Context) {
	h.sourceOnce.Do(func() {
		if err := h.source.Stop(ctx); err != nil && !browser.IsClosedError(err) {
			h.sourceErr = err
		}
	})
}

// run delivers frames one at a time: next, ack, deliver. The capture source
// holds the following frame until the ack, so a slow consumer pushes back
// on chromium rather than filling a queue here.
//
// Whatever ends the loop, the source is stopped before Done closes unless
// Stop already did it.
func (h *Handle) run(ctx context.Context, onFrame FrameFunc) {
	defer close(h.done)
	defer func() {
		if ctx.Err() == nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), h.pipeline.cfg.AckTimeout)
			h.stopSource(stopCtx)
			cancel()
		}
		h.pipeline.metrics.RecordStreamStopped(h.sessionID, h.frames.Load())
	}()

	for {
		frame, err := h.source.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !browser.IsClosedError(err) {
				h.logger.Warn("screencast ended", zap.Error(err))
			}
			return
		}
		received := time.Now()

		ackCtx, cancel := context.WithTimeout(ctx, h.pipeline.cfg.AckTimeout)
		err = h.source.Ack(ackCtx, frame)
		cancel()
		if err != nil {
			if !browser.IsClosedError(err) {
				h.logger.Warn("frame ack failed", zap.Error(err))
			}
			return
		}

		if err := onFrame(frame); err != nil {
			h.logger.Debug("frame consumer gone, stopping capture", zap.Error(err))
			return
		}
		h.frames.Add(1)
		h.pipeline.metrics.RecordFrameDelivered(len(frame.Data), time.Since(received))
	}
}
