package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// Capture is a fake screencast. Like CDP it refuses to push a frame until the
// previous one has been acknowledged, and it counts any consumer that asks
// for the next frame before acknowledging the current one.
type Capture struct {
	Options browser.StreamOptions

	frames   chan browser.Frame
	acked    chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu         sync.Mutex
	nextID     int
	inFlight   bool
	violations int
	acks       int
	stops      int
}

// NewCapture returns an idle capture.
func NewCapture(opts browser.StreamOptions) *Capture {
	return &Capture{
		Options: opts,
		frames:  make(chan browser.Frame),
		acked:   make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Push hands one frame to the consumer and waits for its acknowledgement.
func (c *Capture) Push(ctx context.Context, data []byte) error {
	c.mu.Lock()
	c.nextID++
	frame := browser.Frame{
		AckID: c.nextID,
		Data:  data,
		Metadata: browser.FrameMetadata{
			DeviceWidth:  float64(c.Options.MaxWidth),
			DeviceHeight: float64(c.Options.MaxHeight),
			Timestamp:    time.Now(),
		},
	}
	c.mu.Unlock()

	select {
	case c.frames <- frame:
	case <-c.stopped:
		return browser.ErrCaptureStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.acked:
		return nil
	case <-c.stopped:
		return browser.ErrCaptureStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Capture) Next(ctx context.Context) (browser.Frame, error) {
	c.mu.Lock()
	if c.inFlight {
		c.violations++
	}
	c.mu.Unlock()

	select {
	case frame := <-c.frames:
		c.mu.Lock()
		c.inFlight = true
		c.mu.Unlock()
		return frame, nil
	case <-c.stopped:
		return browser.Frame{}, browser.ErrCaptureStopped
	case <-ctx.Done():
		return browser.Frame{}, ctx.Err()
	}
}

func (c *Capture) Ack(ctx context.Context, frame browser.Frame) error {
	if c.Stopped() {
		return errors.New("session closed")
	}
	c.mu.Lock()
	if !c.inFlight {
		c.violations++
	}
	c.inFlight = false
	c.acks++
	c.mu.Unlock()

	select {
	case c.acked <- struct{}{}:
	default:
	}
	return nil
}

func (c *Capture) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	first := false
	c.stopOnce.Do(func() {
		close(c.stopped)
		first = true
	})
	if !first {
		return errors.New("session closed")
	}
	return nil
}

// Stopped reports whether Stop has been called.
func (c *Capture) Stopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// Acks returns the number of acknowledged frames.
func (c *Capture) Acks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks
}

// Violations counts flow-control breaches by the consumer.
func (c *Capture) Violations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.violations
}

// Stops returns how many times Stop was called.
func (c *Capture) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}
