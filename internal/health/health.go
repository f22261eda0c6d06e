// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 while the process runs. /readyz runs every [Probe]
// concurrently and answers 503 when a required probe fails or the server
// is draining. A failing optional probe only marks the report degraded.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Report statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
	StatusDraining = "draining"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// ErrUnavailable is returned by probes built with [Available].
var ErrUnavailable = errors.New("unavailable")

// Probe checks one dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional probes cover dependencies a session can run without, such
	// as the memory index.
	Optional bool
}

// Pinger is implemented by backends that can verify their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes p.
func Ping(name string, p Pinger) Probe {
	return Probe{Name: name, Check: p.Ping}
}

// Available probes a boolean, such as a provider chain's breaker states.
func Available(name string, ok func() bool) Probe {
	return Probe{Name: name, Check: func(context.Context) error {
		if ok() {
			return nil
		}
		return ErrUnavailable
	}}
}

// Result is the outcome of one probe.
type Result struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Millis int64  `json:"ms"`
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]Result `json:"checks,omitempty"`
}

// Handler serves the probes. The probe list is fixed at construction.
type Handler struct {
	probes   []Probe
	timeout  time.Duration
	started  time.Time
	draining atomic.Bool
}

// New returns a Handler running probes under timeout each. A non-positive
// timeout selects [DefaultTimeout].
func New(timeout time.Duration, probes ...Probe) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		probes:  append([]Probe(nil), probes...),
		timeout: timeout,
		started: time.Now(),
	}
}

// Drain makes readiness fail from now on. The server calls it when
// shutdown begins so no new sessions are routed here.
func (h *Handler) Drain() { h.draining.Store(true) }

// Check runs every probe and folds the results into a report.
func (h *Handler) Check(ctx context.Context) Report {
	results := make([]Result, len(h.probes))
	var g errgroup.Group
	for i, p := range h.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			start := time.Now()
			err := p.Check(pctx)
			results[i] = Result{Status: StatusOK, Millis: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Status, results[i].Error = StatusFail, err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: make(map[string]Result, len(results))}
	for i, p := range h.probes {
		r := results[i]
		rep.Checks[p.Name] = r
		switch {
		case r.Status == StatusOK:
		case p.Optional:
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
		default:
			rep.Status = StatusFail
		}
	}
	return rep
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{
		Status: StatusOK,
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, Report{Status: StatusDraining})
		return
	}
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
