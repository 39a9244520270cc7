package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsClosedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"stale", fmt.Errorf("navigate: %w", ErrHandleStale), true},
		{"stopped", ErrCaptureStopped, true},
		{"canceled", context.Canceled, true},
		{"target closed", errors.New("{-32000 Target closed. }"), true},
		{"session closed", errors.New("Session closed."), true},
		{"engine wrapped", WrapEngineError("ack", errors.New("No target with given id found")), true},
		{"navigation", errors.New("net::ERR_NAME_NOT_RESOLVED"), false},
	}
	for _, tt := range tests {
		if got := IsClosedError(tt.err); got != tt.want {
			t.Errorf("%s: IsClosedError = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWrapEngineError(t *testing.T) {
	if WrapEngineError("x", nil) != nil {
		t.Error("wrapping nil should return nil")
	}
	err := WrapEngineError("screencast", ErrHandleStale)
	if !errors.Is(err, ErrHandleStale) {
		t.Error("wrapped error should match sentinel")
	}
	if err.Error() != "browser screencast: browser handle is stale" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsRetryableError(err) {
		t.Error("stale handle should be retryable")
	}
}

func TestStreamOptions(t *testing.T) {
	opts := StreamOptions{Quality: 85, MaxWidth: 1080, MaxHeight: 1920}.WithDefaults()
	if opts.Format != FrameFormatJPEG || opts.EveryNthFrame != 1 {
		t.Errorf("defaults not applied: %+v", opts)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	bad := []StreamOptions{
		{Format: "gif", Quality: 50, MaxWidth: 1, MaxHeight: 1, EveryNthFrame: 1},
		{Format: FrameFormatJPEG, Quality: 0, MaxWidth: 1, MaxHeight: 1, EveryNthFrame: 1},
		{Format: FrameFormatJPEG, Quality: 101, MaxWidth: 1, MaxHeight: 1, EveryNthFrame: 1},
		{Format: FrameFormatJPEG, Quality: 50, MaxWidth: 0, MaxHeight: 1, EveryNthFrame: 1},
		{Format: FrameFormatJPEG, Quality: 50, MaxWidth: 1, MaxHeight: 1, EveryNthFrame: 0},
	}
	for _, o := range bad {
		if o.Validate() == nil {
			t.Errorf("Validate(%+v) should fail", o)
		}
	}
}
