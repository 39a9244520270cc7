package browser

import (
	"errors"
	"time"
)

// Viewport defines the browser viewport size.
type Viewport struct {
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor,omitempty" yaml:"device_scale_factor"`
}

// DefaultViewport is the portrait surface every session renders at.
// Clients scale it for presentation.
func DefaultViewport() Viewport {
	return Viewport{Width: 1080, Height: 1920, DeviceScaleFactor: 1}
}

// FrameFormat identifies the image format for a frame payload.
type FrameFormat string

const (
	FrameFormatJPEG FrameFormat = "jpeg"
	FrameFormatPNG  FrameFormat = "png"
)

// FrameMetadata describes the page state a frame was captured at.
type FrameMetadata struct {
	DeviceWidth     float64   `json:"device_width"`
	DeviceHeight    float64   `json:"device_height"`
	OffsetTop       float64   `json:"offset_top"`
	PageScaleFactor float64   `json:"page_scale_factor"`
	ScrollOffsetX   float64   `json:"scroll_offset_x"`
	ScrollOffsetY   float64   `json:"scroll_offset_y"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// Frame is a single compressed frame pushed by a capture source.
// AckID identifies the frame to the source when acknowledging it.
type Frame struct {
	AckID    int           `json:"-"`
	Data     []byte        `json:"-"`
	Metadata FrameMetadata `json:"metadata"`
}

// StreamOptions tunes a screencast capture.
type StreamOptions struct {
	Format        FrameFormat `json:"format" yaml:"format"`
	Quality       int         `json:"quality" yaml:"quality"`
	MaxWidth      int         `json:"max_width" yaml:"max_width"`
	MaxHeight     int         `json:"max_height" yaml:"max_height"`
	EveryNthFrame int         `json:"every_nth_frame" yaml:"every_nth_frame"`
}

// DefaultStreamOptions returns the capture defaults used when a caller leaves
// fields unset.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		Format:        FrameFormatJPEG,
		Quality:       50,
		MaxWidth:      2048,
		MaxHeight:     4096,
		EveryNthFrame: 1,
	}
}

// WithDefaults fills zero fields from DefaultStreamOptions.
func (o StreamOptions) WithDefaults() StreamOptions {
	d := DefaultStreamOptions()
	if o.Format != "" {
		d.Format = o.Format
	}
	if o.Quality != 0 {
		d.Quality = o.Quality
	}
	if o.MaxWidth != 0 {
		d.MaxWidth = o.MaxWidth
	}
	if o.MaxHeight != 0 {
		d.MaxHeight = o.MaxHeight
	}
	if o.EveryNthFrame != 0 {
		d.EveryNthFrame = o.EveryNthFrame
	}
	return d
}

// Validate checks whether the options can be sent to a capture source.
func (o StreamOptions) Validate() error {
	switch o.Format {
	case FrameFormatJPEG, FrameFormatPNG:
	default:
		return errors.New("format must be jpeg or png")
	}
	if o.Quality < 1 || o.Quality > 100 {
		return errors.New("quality must be between 1 and 100")
	}
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return errors.New("max_width and max_height must be positive")
	}
	if o.EveryNthFrame < 1 {
		return errors.New("every_nth_frame must be at least 1")
	}
	return nil
}

// PageOptions configures a freshly opened page.
type PageOptions struct {
	Viewport       Viewport
	Locale         string
	AcceptLanguage string
}

// MouseButton identifies a pointer button.
type MouseButton string

const (
	MouseButtonLeft   MouseButton = "left"
	MouseButtonRight  MouseButton = "right"
	MouseButtonMiddle MouseButton = "middle"
)
