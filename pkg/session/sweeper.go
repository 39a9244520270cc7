package session

import (
	"context"
	"time"
)

// Sweeper periodically reclaims idle sessions.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	maxIdle  time.Duration
}

// NewSweeper creates a sweeper. Zero values fall back to a 60s interval and
// a 5m idle threshold.
func NewSweeper(registry *Registry, interval, maxIdle time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}
	return &Sweeper{registry: registry, interval: interval, maxIdle: maxIdle}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.registry.ReclaimIdle(s.maxIdle)
		}
	}
}
