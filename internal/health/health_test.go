package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, h http.Handler, path string) (int, Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("GET %s: decode body: %v", path, err)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("GET %s: Cache-Control = %q, want no-store", path, cc)
	}
	return rec.Code, rep
}

func mux(h *Handler) *http.ServeMux {
	m := http.NewServeMux()
	h.Register(m)
	return m
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	tests := []struct {
		name       string
		probes     []Probe
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no probes",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "all pass",
			probes:     []Probe{Ping("memory", pinger{}), Available("stt", func() bool { return true })},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"memory": StatusOK, "stt": StatusOK},
		},
		{
			name: "optional probe fails",
			probes: []Probe{
				{Name: "memory", Check: pinger{err: down}.Ping, Optional: true},
				Available("llm", func() bool { return true }),
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"memory": StatusFail, "llm": StatusOK},
		},
		{
			name: "required probe fails",
			probes: []Probe{
				{Name: "memory", Check: pinger{err: down}.Ping, Optional: true},
				Available("stt", func() bool { return false }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"memory": StatusFail, "stt": StatusFail},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := get(t, mux(New(0, tt.probes...)), "/readyz")
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if rep.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", rep.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := rep.Checks[name].Status; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ReportsErrors(t *testing.T) {
	t.Parallel()
	h := New(0,
		Ping("memory", pinger{err: errors.New("connection refused")}),
		Available("stt", func() bool { return false }),
	)
	rep := h.Check(context.Background())
	if got := rep.Checks["memory"].Error; got != "connection refused" {
		t.Errorf("memory error = %q", got)
	}
	if got := rep.Checks["stt"].Error; got != ErrUnavailable.Error() {
		t.Errorf("stt error = %q, want %q", got, ErrUnavailable)
	}
}

func TestReadyz_ProbeTimeout(t *testing.T) {
	t.Parallel()
	h := New(20*time.Millisecond, Probe{Name: "whisper", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	code, rep := get(t, mux(h), "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
	if got := rep.Checks["whisper"].Error; got != context.DeadlineExceeded.Error() {
		t.Errorf("whisper error = %q, want deadline exceeded", got)
	}
}

func TestDrain(t *testing.T) {
	t.Parallel()
	called := false
	h := New(0, Probe{Name: "llm", Check: func(context.Context) error { called = true; return nil }})
	h.Drain()

	code, rep := get(t, mux(h), "/readyz")
	if code != http.StatusServiceUnavailable || rep.Status != StatusDraining {
		t.Errorf("readyz = %d %q, want 503 draining", code, rep.Status)
	}
	if called {
		t.Error("draining handler still ran probes")
	}
	if code, _ := get(t, mux(h), "/healthz"); code != http.StatusOK {
		t.Errorf("healthz while draining = %d, want 200", code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(0, Available("stt", func() bool { return false }))
	code, rep := get(t, mux(h), "/healthz")
	if code != http.StatusOK || rep.Status != StatusOK {
		t.Errorf("healthz = %d %q, want 200 ok", code, rep.Status)
	}
	if rep.Uptime == "" {
		t.Error("uptime missing")
	}
	if len(rep.Checks) != 0 {
		t.Errorf("liveness ran probes: %v", rep.Checks)
	}
}
