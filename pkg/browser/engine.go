package browser

import "context"

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context) (Handle, error)
}

// Handle is a connection to one live browser process. Once the process is
// lost or the handle is closed every operation on it, and on contexts and
// pages derived from it, fails with ErrHandleStale.
type Handle interface {
	NewContext(ctx context.Context) (Context, error)
	// Lost is closed when the process disconnects.
	Lost() <-chan struct{}
	Ping(ctx context.Context) error
	Close() error
}

// Context is an isolated browser profile. Closing it closes its pages.
type Context interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

// Page is a single tab within a Context.
type Page interface {
	Input

	// Navigate loads url and returns once the DOM content has loaded.
	Navigate(ctx context.Context, url string) error
	AddStyle(ctx context.Context, css string) error
	Eval(ctx context.Context, js string) error
	StartScreencast(ctx context.Context, opts StreamOptions) (CaptureSource, error)
	Close() error
}

// CaptureSource is a push-based frame stream. The source does not push a new
// frame until the previous one is acknowledged.
type CaptureSource interface {
	// Next blocks until a frame arrives. It returns ErrCaptureStopped once
	// the source has been stopped.
	Next(ctx context.Context) (Frame, error)
	Ack(ctx context.Context, frame Frame) error
	Stop(ctx context.Context) error
}

// Input is the page's input injection surface. Key names are canonical
// DOM key values ("Enter", "ArrowUp", "a").
type Input interface {
	MouseMove(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64, button MouseButton) error
	Scroll(ctx context.Context, deltaX, deltaY float64) error
	InsertText(ctx context.Context, text string) error
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	KeyPress(ctx context.Context, key string) error
}
