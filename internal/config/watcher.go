package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives the previous and the newly loaded config. It runs on
// the watcher goroutine; a slow ChangeFunc delays the next poll.
type ChangeFunc func(old, new *Config)

// Watcher reloads a config file when its content changes. Edits that fail
// to load or validate are logged and skipped, so Current is always a valid
// config.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	current atomic.Pointer[Config]
	seen    fingerprint
}

// fingerprint identifies one version of the file. The modification time
// and size gate the read; the content hash decides whether it changed.
type fingerprint struct {
	mod  time.Time
	size int64
	sum  uint64
}

func (f fingerprint) sameStat(info os.FileInfo) bool {
	return f.mod.Equal(info.ModTime()) && f.size == info.Size()
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and returns a Watcher ready to [Watcher.Run].
// It fails when the file does not load as a valid config.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current.Store(cfg)
	w.seen = fp
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Run polls the file until ctx is done and always returns ctx.Err().
// Run must not be called concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			w.Poll()
		}
	}
}

// Poll checks the file once and reports whether a new config was applied.
// Run calls it on every tick.
func (w *Watcher) Poll() bool {
	log := slog.With("path", w.path)

	info, err := os.Stat(w.path)
	if err != nil {
		log.Warn("config file unreadable, keeping current config", "err", err)
		return false
	}
	if w.seen.sameStat(info) {
		return false
	}

	cfg, fp, err := w.read()
	if err != nil {
		log.Warn("config edit rejected, keeping current config", "err", err)
		// Do not retry the same broken version on every tick.
		w.seen.mod, w.seen.size = info.ModTime(), info.Size()
		return false
	}
	if fp.sum == w.seen.sum {
		w.seen = fp
		return false
	}
	w.seen = fp

	old := w.current.Swap(cfg)
	log.Info("config reloaded")
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

func (w *Watcher) read() (*Config, fingerprint, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mod: info.ModTime(), size: info.Size(), sum: xxhash.Sum64(data)}, nil
}
