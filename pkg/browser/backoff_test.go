package browser

import (
	"testing"
	"time"
)

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := b.Delay(tt.attempt)
			low := time.Duration(float64(tt.base) * 0.75)
			high := time.Duration(float64(tt.base) * 1.25)
			if high > b.Max {
				high = b.Max
			}
			if got < low || got > high {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", tt.attempt, got, low, high)
			}
		}
	}
}

func TestBackoffDelay_ZeroValueUsesDefaults(t *testing.T) {
	got := Backoff{}.Delay(0)
	if got <= 0 || got > DefaultBackoff().Max {
		t.Errorf("Delay(0) = %v", got)
	}
}
