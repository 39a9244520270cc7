package browser

import (
	"math/rand/v2"
	"time"
)

// Backoff describes capped exponential retry delays.
type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

// DefaultBackoff starts at 500ms and doubles up to 30s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2}
}

// Delay returns the wait before retry number attempt (zero based). The result
// is jittered to between 75% and 125% of the exponential value and never
// exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		b = DefaultBackoff()
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}

	delay := float64(b.Initial)
	for i := 0; i < attempt && delay < float64(b.Max); i++ {
		delay *= b.Multiplier
	}
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	jitter := rand.Float64() * delay * 0.5
	delay = delay*0.75 + jitter
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	return time.Duration(delay)
}
