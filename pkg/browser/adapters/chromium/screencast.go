package chromium

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// screencast relays Page.screencastFrame events. The event handler hands
// each frame over an unbuffered channel, so at most one frame is pending
// between chromium and the consumer.
type screencast struct {
	p      *page
	frames chan browser.Frame

	stopped  chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func startScreencast(ctx context.Context, p *page, opts browser.StreamOptions) (*screencast, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(p.h.ctx)
	s := &screencast{
		p:       p,
		frames:  make(chan browser.Frame),
		stopped: make(chan struct{}),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	wait := p.page.Context(listenCtx).EachEvent(func(e *proto.PageScreencastFrame) {
		frame := browser.Frame{AckID: e.SessionID, Data: e.Data}
		if e.Metadata != nil {
			frame.Metadata = browser.FrameMetadata{
				DeviceWidth:     e.Metadata.DeviceWidth,
				DeviceHeight:    e.Metadata.DeviceHeight,
				OffsetTop:       e.Metadata.OffsetTop,
				PageScaleFactor: e.Metadata.PageScaleFactor,
				ScrollOffsetX:   e.Metadata.ScrollOffsetX,
				ScrollOffsetY:   e.Metadata.ScrollOffsetY,
			}
		}
		frame.Metadata.Timestamp = time.Now()
		select {
		case s.frames <- frame:
		case <-listenCtx.Done():
		}
	})
	go func() {
		defer close(s.done)
		wait()
	}()

	format := proto.PageStartScreencastFormatJpeg
	if opts.Format == browser.FrameFormatPNG {
		format = proto.PageStartScreencastFormatPng
	}
	req := proto.PageStartScreencast{
		Format:        format,
		Quality:       intPtr(opts.Quality),
		MaxWidth:      intPtr(opts.MaxWidth),
		MaxHeight:     intPtr(opts.MaxHeight),
		EveryNthFrame: intPtr(opts.EveryNthFrame),
	}
	if err := req.Call(p.page.Context(ctx)); err != nil {
		cancel()
		<-s.done
		return nil, p.h.translate("start screencast", err)
	}
	return s, nil
}

func (s *screencast) Next(ctx context.Context) (browser.Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.stopped:
		return browser.Frame{}, browser.ErrCaptureStopped
	case <-s.p.h.lost:
		return browser.Frame{}, browser.ErrHandleStale
	case <-ctx.Done():
		return browser.Frame{}, ctx.Err()
	}
}

func (s *screencast) Ack(ctx context.Context, frame browser.Frame) error {
	if s.p.h.stale() {
		return browser.ErrHandleStale
	}
	err := proto.PageScreencastFrameAck{SessionID: frame.AckID}.Call(s.p.page.Context(ctx))
	return s.p.h.translate("ack frame", err)
}

// Stop ends the capture and detaches the event listener. Only the first call
// talks to chromium.
func (s *screencast) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopped)
		if !s.p.h.stale() {
			err = proto.PageStopScreencast{}.Call(s.p.page.Context(ctx))
		}
		s.cancel()
		<-s.done
	})
	return s.p.h.translate("stop screencast", err)
}

func intPtr(v int) *int {
	return &v
}
