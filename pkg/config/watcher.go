package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Platforms is the platform allow-list. It is safe for concurrent use and
// can be swapped while requests are being served.
type Platforms struct {
	v atomic.Pointer[map[string]string]
}

// NewPlatforms returns an allow-list holding a copy of m.
func NewPlatforms(m map[string]string) *Platforms {
	p := &Platforms{}
	p.Store(m)
	return p
}

// Lookup resolves a platform name, ignoring case and surrounding space.
func (p *Platforms) Lookup(name string) (string, bool) {
	m := p.v.Load()
	if m == nil {
		return "", false
	}
	target, ok := (*m)[strings.ToLower(strings.TrimSpace(name))]
	return target, ok
}

// Store replaces the allow-list.
func (p *Platforms) Store(m map[string]string) {
	cp := normalizePlatforms(m)
	p.v.Store(&cp)
}

// Snapshot returns a copy of the current allow-list.
func (p *Platforms) Snapshot() map[string]string {
	m := p.v.Load()
	if m == nil {
		return nil
	}
	return maps.Clone(*m)
}

// Watcher reloads the platform allow-list when the config file changes.
// A file that fails to load or validate leaves the current list in place.
type Watcher struct {
	path      string
	platforms *Platforms
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	lastHash [32]byte
	reloads  atomic.Int64
}

// NewWatcher creates a watcher for path that updates platforms.
func NewWatcher(path string, platforms *Platforms, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:      path,
		platforms: platforms,
		debounce:  250 * time.Millisecond,
		logger:    logger.Named("config"),
	}
}

// Reloads returns how many times the allow-list was replaced.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Run watches until ctx is done. The parent directory is watched so that
// editors which replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if data, err := os.ReadFile(abs); err == nil {
		w.mu.Lock()
		w.lastHash = sha256.Sum256(data)
		w.mu.Unlock()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload(abs)
		}
	}
}

func (w *Watcher) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("config reload skipped", zap.String("path", path), zap.Error(err))
		return
	}
	hash := sha256.Sum256(data)
	w.mu.Lock()
	unchanged := hash == w.lastHash
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg := DefaultConfig()
	if err := mergeYAML(cfg, data); err != nil {
		w.logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := validatePlatforms(cfg.Platforms); err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.lastHash = hash
	w.mu.Unlock()
	w.platforms.Store(cfg.Platforms)
	w.reloads.Add(1)
	w.logger.Info("platform allow-list reloaded", zap.Int("platforms", len(cfg.Platforms)))
}
