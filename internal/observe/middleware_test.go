package observe

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	useRecorder(t)
	m, _ := testMetrics(t)

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	t.Run("new trace", func(t *testing.T) {
		rec := serve(h, http.MethodPost, "/api/enroll-voice", nil)
		if len(seen) != 32 {
			t.Fatalf("correlation id = %q, want 32 hex chars", seen)
		}
		if got := rec.Header().Get(CorrelationHeader); got != seen {
			t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
		}
	})

	t.Run("continued trace", func(t *testing.T) {
		const traceID = "0af7651916cd43dd8448eb211c80319c"
		rec := serve(h, http.MethodGet, "/ws/talk", http.Header{
			"Traceparent": {"00-" + traceID + "-b7ad6b7169203331-01"},
		})
		if seen != traceID {
			t.Errorf("correlation id = %q, want %q", seen, traceID)
		}
		if got := rec.Header().Get(CorrelationHeader); got != traceID {
			t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
		}
	})
}

func TestMiddleware_SpanCarriesRouteAndStatus(t *testing.T) {
	exp := useRecorder(t)
	m, _ := testMetrics(t)

	h := Middleware(m, WithRoutes("/ws/conversation"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	serve(h, http.MethodGet, "/ws/conversation", nil)
	serve(h, http.MethodGet, "/wp-admin", nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	for i, want := range []string{"GET /ws/conversation", "GET other"} {
		if got := spans[i].Name; got != want {
			t.Errorf("span %d name = %q, want %q", i, got, want)
		}
	}
	var status int64
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusForbidden {
		t.Errorf("status attribute = %d, want %d", status, http.StatusForbidden)
	}
}

func TestMiddleware_DurationPathLabel(t *testing.T) {
	useRecorder(t)
	m, reader := testMetrics(t)

	h := Middleware(m, WithRoutes("/", "/ws/talk"))(http.NotFoundHandler())
	for _, p := range []string{"/", "/ws/talk", "/ws/talk", "/.env", "/admin"} {
		serve(h, http.MethodGet, p, nil)
	}

	data := collected(t, reader)["talkbuddy.http.request.duration"]
	hist, ok := data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("request duration = %T, want Histogram[float64]", data)
	}
	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		counts[path.AsString()] += dp.Count
	}
	want := map[string]uint64{"/": 1, "/ws/talk": 2, "other": 2}
	for path, n := range want {
		if counts[path] != n {
			t.Errorf("count[%q] = %d, want %d", path, counts[path], n)
		}
	}
	if len(counts) != len(want) {
		t.Errorf("path labels = %v, want only %v", counts, want)
	}
}

func TestMiddleware_QuietProbes(t *testing.T) {
	useRecorder(t)
	m, _ := testMetrics(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := Middleware(m, WithQuietPaths("/healthz"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serve(h, http.MethodGet, "/healthz", nil)
	if strings.Contains(buf.String(), "/healthz") {
		t.Errorf("probe logged at info: %s", buf.String())
	}

	serve(h, http.MethodGet, "/", nil)
	if !strings.Contains(buf.String(), "request completed") {
		t.Errorf("root request not logged: %s", buf.String())
	}
}

func TestMiddleware_AllowsWebsocketUpgrade(t *testing.T) {
	useRecorder(t)

	h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer is not an http.Hijacker")
		}
		if _, _, err := hj.Hijack(); err == nil {
			t.Error("Hijack on a recorder succeeded, want error")
		}
		if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); !ok || u.Unwrap() == nil {
			t.Error("wrapped writer does not expose Unwrap")
		}
	}))
	serve(h, http.MethodGet, "/ws/conversation", nil)
}
