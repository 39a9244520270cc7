package ipc

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// connLimiter caps concurrent websocket channels. A non-positive max
// removes the cap but slots are still counted.
type connLimiter struct {
	sem    *semaphore.Weighted
	active atomic.Int64
}

func newConnLimiter(max int) *connLimiter {
	l := &connLimiter{}
	if max > 0 {
		l.sem = semaphore.NewWeighted(int64(max))
	}
	return l
}

func (l *connLimiter) Acquire() bool {
	if l == nil {
		return true
	}
	if l.sem != nil && !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release frees a slot. Extra releases are ignored.
func (l *connLimiter) Release() {
	if l == nil {
		return
	}
	for {
		n := l.active.Load()
		if n <= 0 {
			return
		}
		if l.active.CompareAndSwap(n, n-1) {
			break
		}
	}
	if l.sem != nil {
		l.sem.Release(1)
	}
}

// Active returns the number of held slots.
func (l *connLimiter) Active() int {
	if l == nil {
		return 0
	}
	return int(l.active.Load())
}
