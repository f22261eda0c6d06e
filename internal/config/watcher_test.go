package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/talkbuddy/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: ollama
    model: llama3.2
  stt:
    name: whisper
    base_url: http://localhost:8080
  verifier:
    name: voiceprint
    base_url: http://localhost:8090
talk:
  grace_period_frames: 20
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: ollama
    model: llama3.2
  stt:
    name: whisper
    base_url: http://localhost:8080
  verifier:
    name: voiceprint
    base_url: http://localhost:8090
talk:
  grace_period_frames: 25
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeAt writes content to path and stamps it with a modification time
// step seconds in the future, so consecutive writes never share an mtime.
func writeAt(t *testing.T, path, content string, step int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	mod := time.Now().Add(time.Duration(step) * time.Second)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

type recorder struct{ calls [][2]*config.Config }

func (r *recorder) onChange(old, new *config.Config) {
	r.calls = append(r.calls, [2]*config.Config{old, new})
}

func newWatched(t *testing.T) (string, *config.Watcher, *recorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talkbuddy.yaml")
	writeAt(t, path, watcherValidYAML, 0)
	rec := &recorder{}
	w, err := config.NewWatcher(path, rec.onChange)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return path, w, rec
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	_, w, rec := newWatched(t)

	if got := w.Current().Talk.GracePeriodFrames; got != 20 {
		t.Errorf("grace_period_frames = %d, want 20", got)
	}
	if w.Poll() {
		t.Error("Poll on an untouched file = true, want false")
	}
	if len(rec.calls) != 0 {
		t.Errorf("callback fired %d times, want 0", len(rec.calls))
	}
}

func TestWatcher_AppliesEdit(t *testing.T) {
	t.Parallel()
	path, w, rec := newWatched(t)

	writeAt(t, path, watcherUpdatedYAML, 1)
	if !w.Poll() {
		t.Fatal("Poll after edit = false, want true")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("callback fired %d times, want 1", len(rec.calls))
	}
	old, cur := rec.calls[0][0], rec.calls[0][1]
	if old.Talk.GracePeriodFrames != 20 || cur.Talk.GracePeriodFrames != 25 {
		t.Errorf("grace frames old/new = %d/%d, want 20/25",
			old.Talk.GracePeriodFrames, cur.Talk.GracePeriodFrames)
	}
	if w.Current() != cur {
		t.Error("Current does not return the config passed to the callback")
	}

	d := config.Diff(old, cur)
	if !d.LogLevelChanged || len(d.Sections) != 1 || d.Sections[0] != "talk" {
		t.Errorf("Diff = %+v, want log level and talk changes", d)
	}
}

func TestWatcher_RejectsInvalidEdit(t *testing.T) {
	t.Parallel()
	path, w, rec := newWatched(t)

	writeAt(t, path, watcherInvalidYAML, 1)
	for range 3 {
		if w.Poll() {
			t.Fatal("Poll after invalid edit = true, want false")
		}
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want previous %q", w.Current().Server.LogLevel, config.LogInfo)
	}

	// Fixing the file is picked up.
	writeAt(t, path, watcherUpdatedYAML, 2)
	if !w.Poll() {
		t.Fatal("Poll after fix = false, want true")
	}
	if len(rec.calls) != 1 {
		t.Errorf("callback fired %d times, want 1", len(rec.calls))
	}
}

func TestWatcher_TouchIsNotAChange(t *testing.T) {
	t.Parallel()
	path, w, rec := newWatched(t)

	mod := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if w.Poll() {
		t.Error("Poll after touch = true, want false")
	}
	if len(rec.calls) != 0 {
		t.Errorf("callback fired %d times, want 0", len(rec.calls))
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("NewWatcher on a missing file = nil error, want error")
	}

	path, w, _ := newWatched(t)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if w.Poll() {
		t.Error("Poll after delete = true, want false")
	}
	if w.Current() == nil {
		t.Error("Current = nil after delete, want previous config")
	}
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "talkbuddy.yaml")
	writeAt(t, path, watcherValidYAML, 0)

	changed := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) { changed <- new },
		config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeAt(t, path, watcherUpdatedYAML, 1)
	select {
	case cfg := <-changed:
		if cfg.Server.LogLevel != config.LogDebug {
			t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogDebug)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not apply the edit")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
