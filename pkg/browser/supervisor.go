package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SupervisorConfig tunes crash detection and relaunch.
type SupervisorConfig struct {
	HealthInterval  time.Duration
	PingTimeout     time.Duration
	MaxPingFailures int
	Backoff         Backoff
}

// DefaultSupervisorConfig returns the default probe and backoff settings.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		HealthInterval:  5 * time.Second,
		PingTimeout:     3 * time.Second,
		MaxPingFailures: 2,
		Backoff:         DefaultBackoff(),
	}
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	d := DefaultSupervisorConfig()
	if c.HealthInterval > 0 {
		d.HealthInterval = c.HealthInterval
	}
	if c.PingTimeout > 0 {
		d.PingTimeout = c.PingTimeout
	}
	if c.MaxPingFailures > 0 {
		d.MaxPingFailures = c.MaxPingFailures
	}
	if c.Backoff.Initial > 0 {
		d.Backoff = c.Backoff
	}
	return d
}

// Lease is a handle tagged with the generation it was launched as.
type Lease struct {
	Handle
	Generation uint64
}

// Supervisor owns the shared browser process. It replaces the handle
// whenever the process is lost and notifies OnLost subscribers once per loss.
type Supervisor struct {
	launcher Launcher
	cfg      SupervisorConfig
	logger   *zap.Logger
	metrics  *Metrics

	current    atomic.Pointer[Lease]
	generation atomic.Uint64
	started    atomic.Bool

	mu        sync.Mutex
	available chan struct{}
	onLost    []func(generation uint64)
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor. Call Start to launch the first process.
func NewSupervisor(launcher Launcher, cfg SupervisorConfig, logger *zap.Logger, metrics *Metrics) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		launcher:  launcher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		metrics:   metrics,
		available: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the initial browser process. After a successful Start,
// later calls return ErrStarted; a failed Start may be retried.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	h, err := s.launcher.Launch(ctx)
	if err != nil {
		s.started.Store(false)
		s.metrics.RecordLaunchFailure()
		return WrapEngineError("launch", err)
	}
	if lease := s.install(h); lease != nil {
		s.logger.Info("browser launched", zap.Uint64("generation", lease.Generation))
		s.metrics.RecordBrowserLaunched(lease.Generation, 1)
	}
	return nil
}

// Acquire returns the live handle, waiting for a relaunch in progress.
func (s *Supervisor) Acquire(ctx context.Context) (*Lease, error) {
	for {
		s.mu.Lock()
		closed := s.closed
		lease := s.current.Load()
		ready := s.available
		s.mu.Unlock()

		if closed {
			return nil, ErrUnavailable
		}
		if lease != nil {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ctx.Done():
			return nil, ErrUnavailable
		case <-ready:
		}
	}
}

// Current returns the live lease without waiting, or nil.
func (s *Supervisor) Current() *Lease {
	return s.current.Load()
}

// OnLost registers fn to run once for every lost process generation.
func (s *Supervisor) OnLost(fn func(generation uint64)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onLost = append(s.onLost, fn)
	s.mu.Unlock()
}

// Close stops supervision and closes the live process.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	if lease := s.current.Swap(nil); lease != nil {
		return lease.Close()
	}
	return nil
}

func (s *Supervisor) install(h Handle) *Lease {
	lease := &Lease{Handle: h, Generation: s.generation.Add(1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = h.Close()
		return nil
	}
	s.current.Store(lease)
	close(s.available)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watch(lease)
	return lease
}

func (s *Supervisor) watch(lease *Lease) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-lease.Lost():
			s.handleLost(lease, "disconnected")
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PingTimeout)
			err := lease.Ping(pingCtx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			failures++
			s.logger.Warn("browser health probe failed",
				zap.Uint64("generation", lease.Generation),
				zap.Int("failures", failures),
				zap.Error(err))
			if failures >= s.cfg.MaxPingFailures {
				s.handleLost(lease, "health probe failed")
				return
			}
		}
	}
}

func (s *Supervisor) handleLost(lease *Lease, reason string) {
	s.mu.Lock()
	if s.closed || s.current.Load() != lease {
		s.mu.Unlock()
		return
	}
	s.current.Store(nil)
	s.available = make(chan struct{})
	handlers := append([]func(uint64){}, s.onLost...)
	s.wg.Add(1)
	s.mu.Unlock()

	_ = lease.Close()
	s.logger.Warn("browser lost, relaunching",
		zap.Uint64("generation", lease.Generation),
		zap.String("reason", reason))
	s.metrics.RecordBrowserLost(lease.Generation, reason)

	for _, fn := range handlers {
		fn(lease.Generation)
	}

	go s.relaunch()
}

func (s *Supervisor) relaunch() {
	defer s.wg.Done()

	for attempt := 0; ; attempt++ {
		h, err := s.launcher.Launch(s.ctx)
		if err == nil {
			if lease := s.install(h); lease != nil {
				s.logger.Info("browser relaunched",
					zap.Uint64("generation", lease.Generation),
					zap.Int("attempts", attempt+1))
				s.metrics.RecordBrowserLaunched(lease.Generation, attempt+1)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		s.metrics.RecordLaunchFailure()
		delay := s.cfg.Backoff.Delay(attempt)
		s.logger.Error("browser relaunch failed",
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
