package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/browser/browsertest"
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticAcquirer struct {
	lease *browser.Lease
	err   error
}

func (a staticAcquirer) Acquire(ctx context.Context) (*browser.Lease, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.lease, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingChannel struct {
	id      string
	closed  bool
	mu      sync.Mutex
	notices []string
}

func (c *recordingChannel) ID() string { return c.id }
func (c *recordingChannel) Open() bool { return !c.closed }

func (c *recordingChannel) NotifyEnded(ctx context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, message)
	return nil
}

func (c *recordingChannel) Notices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.notices...)
}

type countingStream struct {
	mu    sync.Mutex
	stops int
}

func (s *countingStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *countingStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fixture struct {
	handle   *browsertest.Handle
	opener   *Opener
	registry *Registry
	metrics  *browser.Metrics
	clock    *fakeClock
}

func newFixture(t *testing.T, cfg RegistryConfig) *fixture {
	t.Helper()
	handle := browsertest.NewHandle()
	clock := newFakeClock()
	metrics := browser.NewMetrics()
	if cfg.Now == nil {
		cfg.Now = clock.Now
	}
	cfg.Metrics = metrics
	return &fixture{
		handle:   handle,
		opener:   NewOpener(staticAcquirer{lease: &browser.Lease{Handle: handle, Generation: 1}}, DefaultOpenerConfig(), nil),
		registry: NewRegistry(cfg),
		metrics:  metrics,
		clock:    clock,
	}
}

func (f *fixture) create(t *testing.T) *Session {
	t.Helper()
	sess, err := f.registry.Create(context.Background(), f.opener.Open("x", "https://x.com/"))
	require.NoError(t, err)
	return sess
}

func pageOf(t *testing.T, sess *Session) *browsertest.Page {
	t.Helper()
	p, ok := sess.Page().(*browsertest.Page)
	require.True(t, ok)
	return p
}

func TestRegistry_CreateNavigatesAndStores(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)

	assert.True(t, ValidID(sess.ID))
	assert.Equal(t, "x", sess.Platform)
	assert.Equal(t, uint64(1), sess.Generation)
	assert.Equal(t, browser.DefaultViewport(), sess.Viewport)
	assert.Equal(t, f.clock.Now(), sess.LastActivity())

	page := pageOf(t, sess)
	assert.Equal(t, "https://x.com/", page.URL())
	assert.Equal(t, []string{DefaultPageStyle}, page.Styles())
	assert.Equal(t, "en-US", page.Options.Locale)
	assert.Equal(t, "en-US,en;q=0.9", page.Options.AcceptLanguage)
	assert.Equal(t, 1080, page.Options.Viewport.Width)
	assert.Equal(t, 1920, page.Options.Viewport.Height)

	got, ok := f.registry.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, f.registry.Len())
	assert.Equal(t, int64(1), f.metrics.Snapshot().SessionsCreated)
}

func TestRegistry_IDsAreUnique(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess := f.create(t)
		require.False(t, seen[sess.ID], "duplicate id %s", sess.ID)
		seen[sess.ID] = true
	}
	assert.Equal(t, 50, f.registry.Len())
}

func TestRegistry_NavigationFailureTearsDown(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	f.handle.PageHook = func(p *browsertest.Page) {
		p.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	}

	_, err := f.registry.Create(context.Background(), f.opener.Open("x", "https://x.com/"))
	require.Error(t, err)
	assert.True(t, bcerrors.IsCode(err, bcerrors.ErrCodeNavigationFailed))
	assert.Zero(t, f.registry.Len())

	contexts := f.handle.Contexts()
	require.Len(t, contexts, 1)
	assert.Equal(t, 1, contexts[0].CloseCount())
	pages := contexts[0].Pages()
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].CloseCount())
	assert.Equal(t, int64(1), f.metrics.Snapshot().NavigationFailed)
}

func TestRegistry_NavigationTimeout(t *testing.T) {
	f := newFixture(t, RegistryConfig{NavigationTimeout: 20 * time.Millisecond})
	f.handle.PageHook = func(p *browsertest.Page) {
		p.NavigateDelay = time.Second
	}

	_, err := f.registry.Create(context.Background(), f.opener.Open("x", "https://x.com/"))
	require.Error(t, err)
	assert.True(t, bcerrors.IsCode(err, bcerrors.ErrCodeNavigationFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.registry.Len())
}

func TestRegistry_CreateOnStaleHandle(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	f.handle.Crash()

	_, err := f.registry.Create(context.Background(), f.opener.Open("x", "https://x.com/"))
	require.Error(t, err)
	assert.True(t, bcerrors.IsCode(err, bcerrors.ErrCodeHandleStale))
	assert.True(t, bcerrors.IsRetryable(err))
	assert.ErrorIs(t, err, browser.ErrHandleStale)
}

func TestRegistry_CreateWithoutBrowser(t *testing.T) {
	registry := NewRegistry(RegistryConfig{})
	opener := NewOpener(staticAcquirer{err: browser.ErrUnavailable}, DefaultOpenerConfig(), nil)

	_, err := registry.Create(context.Background(), opener.Open("x", "https://x.com/"))
	require.Error(t, err)
	assert.True(t, bcerrors.IsCode(err, bcerrors.ErrCodeHandleStale))
}

func TestRegistry_StyleFailureIsIgnored(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	cfg := DefaultOpenerConfig()
	cfg.Style = ""
	opener := NewOpener(staticAcquirer{lease: &browser.Lease{Handle: f.handle, Generation: 1}}, cfg, nil)

	sess, err := f.registry.Create(context.Background(), opener.Open("x", "https://x.com/"))
	require.NoError(t, err)
	assert.Empty(t, pageOf(t, sess).Styles())
}

func TestRegistry_GetUnknown(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	_, ok := f.registry.Get("missing")
	assert.False(t, ok)
	assert.False(t, f.registry.Update("missing", Patch{ClearStream: true}))
}

func TestRegistry_UpdateBumpsActivity(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)
	ch := &recordingChannel{id: "c1"}

	f.clock.Advance(time.Minute)
	require.True(t, f.registry.Update(sess.ID, Patch{Channel: ch}))
	assert.Same(t, ch, sess.Channel())
	assert.Equal(t, f.clock.Now(), sess.LastActivity())

	require.True(t, f.registry.Update(sess.ID, Patch{ClearChannel: true}))
	assert.Nil(t, sess.Channel())
}

func TestRegistry_DeleteIsIdempotent(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)
	ch := &recordingChannel{id: "c1"}
	stream := &countingStream{}
	require.True(t, f.registry.Update(sess.ID, Patch{Channel: ch}))
	require.NoError(t, f.registry.AttachStream(sess.ID, stream))

	assert.True(t, f.registry.Delete(sess.ID))
	assert.False(t, f.registry.Delete(sess.ID))

	assert.Equal(t, 1, stream.Stops())
	assert.Equal(t, []string{EndedMessage}, ch.Notices())
	page := pageOf(t, sess)
	assert.Equal(t, 1, page.CloseCount())
	assert.Equal(t, 1, f.handle.Contexts()[0].CloseCount())

	_, ok := f.registry.Get(sess.ID)
	assert.False(t, ok)
	assert.Equal(t, int64(0), f.metrics.Snapshot().ActiveSessions)
}

func TestRegistry_DeleteSkipsClosedChannel(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)
	ch := &recordingChannel{id: "c1", closed: true}
	require.True(t, f.registry.Update(sess.ID, Patch{Channel: ch}))

	require.True(t, f.registry.Delete(sess.ID))
	assert.Empty(t, ch.Notices())
}

func TestRegistry_DeleteSwallowsCloseErrors(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)
	require.NoError(t, sess.Page().Close())

	assert.True(t, f.registry.Delete(sess.ID))
	assert.Equal(t, 2, pageOf(t, sess).CloseCount())
}

func TestRegistry_AttachStreamAllowsOne(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)
	first := &countingStream{}
	second := &countingStream{}

	require.NoError(t, f.registry.AttachStream(sess.ID, first))
	assert.ErrorIs(t, f.registry.AttachStream(sess.ID, second), ErrStreamActive)
	assert.True(t, sess.Streaming())

	assert.False(t, f.registry.DetachStream(sess.ID, second))
	assert.True(t, f.registry.DetachStream(sess.ID, first))
	assert.False(t, sess.Streaming())

	err := f.registry.AttachStream("missing", first)
	assert.True(t, bcerrors.IsCode(err, bcerrors.ErrCodeInvalidSession))
}

func TestRegistry_DetachChannelOnlyIfCurrent(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sess := f.create(t)
	old := &recordingChannel{id: "old"}
	current := &recordingChannel{id: "current"}
	require.True(t, f.registry.Update(sess.ID, Patch{Channel: old}))
	require.True(t, f.registry.Update(sess.ID, Patch{Channel: current}))

	assert.False(t, f.registry.DetachChannel(sess.ID, old))
	assert.Same(t, current, sess.Channel())
	assert.True(t, f.registry.DetachChannel(sess.ID, current))
	assert.Nil(t, sess.Channel())
}

func TestRegistry_ReclaimIdle(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	stale := f.create(t)
	fresh := f.create(t)

	f.clock.Advance(4 * time.Minute)
	_, ok := f.registry.Get(fresh.ID)
	require.True(t, ok)
	f.clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, f.registry.ReclaimIdle(5*time.Minute))
	_, ok = f.registry.Get(stale.ID)
	assert.False(t, ok)
	_, ok = f.registry.Get(fresh.ID)
	assert.True(t, ok)
	assert.Equal(t, int64(1), f.metrics.Snapshot().SessionsReclaimed)

	assert.Zero(t, f.registry.ReclaimIdle(5*time.Minute))
}

func TestRegistry_PurgeGeneration(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	old := f.create(t)

	next := browsertest.NewHandle()
	opener := NewOpener(staticAcquirer{lease: &browser.Lease{Handle: next, Generation: 2}}, DefaultOpenerConfig(), nil)
	current, err := f.registry.Create(context.Background(), opener.Open("x", "https://x.com/"))
	require.NoError(t, err)

	f.handle.Crash()
	assert.Equal(t, 1, f.registry.PurgeGeneration(1))
	_, ok := f.registry.Get(old.ID)
	assert.False(t, ok)
	_, ok = f.registry.Get(current.ID)
	assert.True(t, ok)
}

func TestRegistry_ConcurrentTeardownClosesOnce(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	sessions := make([]*Session, 20)
	for i := range sessions {
		sessions[i] = f.create(t)
	}
	f.clock.Advance(time.Hour)

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			f.registry.Delete(id)
		}(sess.ID)
		go func() {
			defer wg.Done()
			f.registry.ReclaimIdle(time.Minute)
		}()
	}
	wg.Wait()

	assert.Zero(t, f.registry.Len())
	for _, sess := range sessions {
		assert.Equal(t, 1, pageOf(t, sess).CloseCount())
	}
	assert.Equal(t, int64(20), f.metrics.Snapshot().SessionsEnded)
}

func TestRegistry_SnapshotOrdersByCreation(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	first := f.create(t)
	f.clock.Advance(time.Second)
	second := f.create(t)
	require.NoError(t, f.registry.AttachStream(second.ID, &countingStream{}))

	infos := f.registry.Snapshot()
	require.Len(t, infos, 2)
	assert.Equal(t, first.ID, infos[0].ID)
	assert.Equal(t, second.ID, infos[1].ID)
	assert.False(t, infos[0].Streaming)
	assert.True(t, infos[1].Streaming)
}

func TestRegistry_Close(t *testing.T) {
	f := newFixture(t, RegistryConfig{})
	f.create(t)
	f.create(t)
	f.registry.Close()
	assert.Zero(t, f.registry.Len())
}
