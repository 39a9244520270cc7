package session

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/browsercast/pkg/browser"
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
	"github.com/odvcencio/browsercast/pkg/telemetry"
)

// Removal reasons reported to metrics.
const (
	reasonEnded  = "ended"
	reasonIdle   = "idle"
	reasonPurged = "purged"
)

// ErrStreamActive is returned by AttachStream when a stream is already attached.
var ErrStreamActive = stderrors.New("session already streaming")

// Resources is what a Factory hands to the registry: a context and a page
// that has finished its initial navigation.
type Resources struct {
	Context    browser.Context
	Page       browser.Page
	Platform   string
	URL        string
	Viewport   browser.Viewport
	Generation uint64

	// NavigationLatency is how long the initial navigation took.
	NavigationLatency time.Duration
}

// Factory opens the browser resources for a new session. On error it must
// release anything it opened.
type Factory func(ctx context.Context) (*Resources, error)

// RegistryConfig configures the session registry.
type RegistryConfig struct {
	NavigationTimeout time.Duration
	TeardownTimeout   time.Duration
	Logger            *zap.Logger
	Metrics           *browser.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Registry owns every live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	navTimeout      time.Duration
	teardownTimeout time.Duration
	logger          *zap.Logger
	metrics         *browser.Metrics
	now             func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	navTimeout := cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	teardownTimeout := cfg.TeardownTimeout
	if teardownTimeout <= 0 {
		teardownTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions:        make(map[string]*Session),
		navTimeout:      navTimeout,
		teardownTimeout: teardownTimeout,
		logger:          logger,
		metrics:         cfg.Metrics,
		now:             now,
	}
}

// Create runs factory under the navigation timeout and stores the result.
func (r *Registry) Create(ctx context.Context, factory Factory) (*Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "session.create")
	defer span.End()

	navCtx, cancel := context.WithTimeout(ctx, r.navTimeout)
	defer cancel()

	res, err := factory(navCtx)
	if err != nil {
		r.metrics.RecordNavigationFailed()
		telemetry.RecordError(ctx, err)
		return nil, classifyCreateError(err)
	}

	now := r.now()
	sess := &Session{
		ID:           NewID(),
		Platform:     res.Platform,
		URL:          res.URL,
		Viewport:     res.Viewport,
		Generation:   res.Generation,
		CreatedAt:    now,
		bctx:         res.Context,
		page:         res.Page,
		lastActivity: now,
	}

	r.mu.Lock()
	for {
		if _, exists := r.sessions[sess.ID]; !exists {
			break
		}
		sess.ID = NewID()
	}
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	span.SetAttributes(
		telemetry.AttrSessionID.String(sess.ID),
		telemetry.AttrPlatform.String(sess.Platform),
		telemetry.AttrGeneration.Int64(int64(sess.Generation)),
	)
	r.metrics.RecordSessionCreated(sess.ID, sess.Platform, res.NavigationLatency)
	r.logger.Info("session created",
		zap.String("session", sess.ID),
		zap.String("platform", sess.Platform),
		zap.Uint64("generation", sess.Generation),
		zap.Duration("navigation", res.NavigationLatency))
	return sess, nil
}

func classifyCreateError(err error) error {
	if _, ok := bcerrors.As(err); ok {
		return err
	}
	if stderrors.Is(err, browser.ErrHandleStale) || stderrors.Is(err, browser.ErrUnavailable) {
		return bcerrors.Wrap(err, bcerrors.ErrCodeHandleStale, "browser unavailable").
			WithRetryable(true)
	}
	return bcerrors.Wrap(err, bcerrors.ErrCodeNavigationFailed, "failed to start session")
}

// Get returns the session and bumps its activity.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sess.touch(r.now())
	return sess, true
}

// Update applies patch and bumps activity. It returns false if id is unknown.
func (r *Registry) Update(id string, patch Patch) bool {
	sess, ok := r.Get(id)
	if !ok {
		return false
	}
	sess.apply(patch)
	return true
}

// AttachStream attaches s unless another stream is already attached.
func (r *Registry) AttachStream(id string, s Stream) error {
	sess, ok := r.Get(id)
	if !ok {
		return bcerrors.New(bcerrors.ErrCodeInvalidSession, "invalid session").WithContext("session", id)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return bcerrors.New(bcerrors.ErrCodeInvalidSession, "invalid session").WithContext("session", id)
	}
	if sess.stream != nil {
		return ErrStreamActive
	}
	sess.stream = s
	return nil
}

// DetachStream clears the session's stream if it is still s.
func (r *Registry) DetachStream(id string, s Stream) bool {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.stream != s {
		return false
	}
	sess.stream = nil
	return true
}

// DetachChannel clears the session's channel if it is still ch.
func (r *Registry) DetachChannel(id string, ch Channel) bool {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.channel != ch {
		return false
	}
	sess.channel = nil
	return true
}

// Delete tears the session down. It is safe to call more than once.
func (r *Registry) Delete(id string) bool {
	return r.remove(id, reasonEnded)
}

// ReclaimIdle deletes every session idle for longer than maxIdle.
func (r *Registry) ReclaimIdle(maxIdle time.Duration) int {
	now := r.now()
	var stale []string
	r.mu.RLock()
	for id, sess := range r.sessions {
		if sess.idleSince(now) > maxIdle {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	reclaimed := 0
	for _, id := range stale {
		if r.remove(id, reasonIdle) {
			reclaimed++
		}
	}
	if reclaimed > 0 {
		r.logger.Info("reclaimed idle sessions", zap.Int("count", reclaimed), zap.Duration("max_idle", maxIdle))
	}
	return reclaimed
}

// PurgeGeneration deletes every session created on the given browser
// generation. Their contexts died with the process.
func (r *Registry) PurgeGeneration(generation uint64) int {
	var doomed []string
	r.mu.RLock()
	for id, sess := range r.sessions {
		if sess.Generation == generation {
			doomed = append(doomed, id)
		}
	}
	r.mu.RUnlock()

	purged := 0
	for _, id := range doomed {
		if r.remove(id, reasonPurged) {
			purged++
		}
	}
	if purged > 0 {
		r.logger.Warn("purged sessions from lost browser",
			zap.Uint64("generation", generation),
			zap.Int("count", purged))
	}
	return purged
}

// Close deletes every session.
func (r *Registry) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.remove(id, reasonEnded)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot lists live sessions, oldest first, without bumping activity.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.info())
	}
	r.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

func (r *Registry) remove(id, reason string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	ch, st, first := sess.detach()
	if !first {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.teardownTimeout)
	defer cancel()
	log := r.logger.With(zap.String("session", id))

	if st != nil {
		if err := st.Stop(ctx); err != nil {
			log.Debug("stop stream during teardown", zap.Error(err))
		}
	}
	if ch != nil && ch.Open() {
		if err := ch.NotifyEnded(ctx, EndedMessage); err != nil {
			log.Debug("notify session end", zap.Error(err))
		}
	}
	if sess.page != nil {
		if err := sess.page.Close(); err != nil {
			log.Debug("close page", zap.Error(err))
		}
	}
	if sess.bctx != nil {
		if err := sess.bctx.Close(); err != nil {
			log.Debug("close context", zap.Error(err))
		}
	}

	lifetime := r.now().Sub(sess.CreatedAt)
	r.metrics.RecordSessionEnded(id, reason, lifetime)
	log.Info("session ended", zap.String("reason", reason), zap.Duration("lifetime", lifetime))
	return true
}
