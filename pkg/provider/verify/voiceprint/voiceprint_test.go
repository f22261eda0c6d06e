package voiceprint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// signModel maps positive-mean audio to one speaker and negative-mean audio
// to an orthogonal one.
type signModel struct {
	mu    sync.Mutex
	calls int
}

func (m *signModel) Extract(_ context.Context, pcm []int16) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	var sum int64
	for _, s := range pcm {
		sum += int64(s)
	}
	if sum >= 0 {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (m *signModel) Dimension() int { return 2 }

func (m *signModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func constFrame(v int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func newTestEngine(t *testing.T, m Model, hop int) *Engine {
	t.Helper()
	e, err := New(m,
		WithFrameLength(512),
		WithWindow(2048, 1024),
		WithHop(hop),
		WithEnrollment(1024, 3),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestProfileRoundTrip(t *testing.T) {
	t.Parallel()

	want := []float32{0.25, -0.5, 1}
	got, err := DecodeProfile(EncodeProfile(want))
	if err != nil {
		t.Fatalf("DecodeProfile: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeProfile_Invalid(t *testing.T) {
	t.Parallel()

	valid := EncodeProfile([]float32{1, 2})
	for name, data := range map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("XXXX"), valid[4:]...),
		"truncated": valid[:len(valid)-1],
		"version":   append(append([]byte("TBVP"), 9), valid[5:]...),
	} {
		if _, err := DecodeProfile(data); !errors.Is(err, verify.ErrInvalidProfile) {
			t.Errorf("%s: err = %v, want %v", name, err, verify.ErrInvalidProfile)
		}
	}
}

func TestProfiler(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &signModel{}, 1)
	p, err := e.NewProfiler()
	if err != nil {
		t.Fatalf("NewProfiler: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	if _, err := p.Export(); !errors.Is(err, verify.ErrNotEnoughSpeech) {
		t.Fatalf("early Export err = %v, want %v", err, verify.ErrNotEnoughSpeech)
	}

	// Silence does not count.
	if got, _ := p.Enroll(ctx, constFrame(0, 1024)); got != 0 {
		t.Errorf("progress after silence = %v, want 0", got)
	}

	var progress float64
	for range 3 {
		progress, err = p.Enroll(ctx, constFrame(3000, p.MinEnrollSamples()))
		if err != nil {
			t.Fatalf("Enroll: %v", err)
		}
	}
	if progress != 100 {
		t.Fatalf("progress = %v, want 100", progress)
	}
	profile, err := p.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	emb, _ := DecodeProfile(profile)
	if emb[0] != 1 || emb[1] != 0 {
		t.Errorf("profile = %v, want [1 0]", emb)
	}
}

func TestSessionScore(t *testing.T) {
	t.Parallel()

	m := &signModel{}
	e := newTestEngine(t, m, 1)
	sess, err := e.NewSession(EncodeProfile([]float32{1, 0}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()
	ctx := context.Background()

	// First frame: window below minimum fill.
	if got, _ := sess.Score(ctx, constFrame(3000, 512)); got != 0 {
		t.Errorf("score before min window = %v, want 0", got)
	}
	if got, _ := sess.Score(ctx, constFrame(3000, 512)); got != 1 {
		t.Errorf("enrolled speaker score = %v, want 1", got)
	}
	// Window slides fully to the other speaker after four frames.
	var got float64
	for range 4 {
		got, _ = sess.Score(ctx, constFrame(-3000, 512))
	}
	if got != 0 {
		t.Errorf("other speaker score = %v, want 0", got)
	}
	for range 4 {
		got, _ = sess.Score(ctx, constFrame(0, 512))
	}
	if got != 0 {
		t.Errorf("silence score = %v, want 0", got)
	}

	if _, err := sess.Score(ctx, constFrame(1, 100)); err == nil {
		t.Error("expected error for wrong frame length")
	}
}

func TestSessionHop(t *testing.T) {
	t.Parallel()

	m := &signModel{}
	e := newTestEngine(t, m, 4)
	sess, _ := e.NewSession(EncodeProfile([]float32{1, 0}))
	ctx := context.Background()

	for range 10 {
		if _, err := sess.Score(ctx, constFrame(3000, 512)); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	// Frames 2..10 are scored; embeddings at frames 2, 5 and 9.
	if got := m.Calls(); got != 3 {
		t.Errorf("model calls = %d, want 3", got)
	}

	sess.Reset()
	if got, _ := sess.Score(ctx, constFrame(3000, 512)); got != 0 {
		t.Errorf("score after Reset = %v, want 0", got)
	}
}

func TestSessionClosed(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &signModel{}, 1)
	sess, _ := e.NewSession(EncodeProfile([]float32{1, 0}))
	_ = sess.Close()
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := sess.Score(context.Background(), constFrame(1, 512)); !errors.Is(err, verify.ErrClosed) {
		t.Errorf("err = %v, want %v", err, verify.ErrClosed)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); err == nil {
		t.Error("expected error for nil model")
	}
	if _, err := New(&signModel{}, WithWindow(100, 200)); err == nil {
		t.Error("expected error for min window above window")
	}
	if _, err := New(&signModel{}, WithHop(0)); err == nil {
		t.Error("expected error for zero hop")
	}
}

func TestHTTPModel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q, want /embed", r.URL.Path)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer f.Close()
		wav, err := audio.DecodeWAV(f)
		if err != nil || wav.SampleRate != audio.SampleRate || len(wav.Samples) != 640 {
			t.Errorf("uploaded wav = %+v, err %v", wav, err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	m, err := NewHTTPModel(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewHTTPModel: %v", err)
	}
	emb, err := m.Extract(context.Background(), make([]int16, 640))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(emb) != 3 {
		t.Errorf("len = %d, want 3", len(emb))
	}
	if got := m.Dimension(); got != 3 {
		t.Errorf("Dimension = %d, want 3", got)
	}
}

func TestHTTPModel_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m, _ := NewHTTPModel(srv.URL)
	if _, err := m.Extract(context.Background(), make([]int16, 10)); err == nil {
		t.Fatal("expected error")
	}
}
