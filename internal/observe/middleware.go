package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID back to the client.
const CorrelationHeader = "X-Correlation-ID"

// otherRoute labels requests for paths outside the known route set.
const otherRoute = "other"

// responseWriter remembers the status the wrapped handler wrote.
type responseWriter struct {
	http.ResponseWriter
	status   int
	upgraded bool
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through. A hijacked connection counts
// as 101 Switching Protocols.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T cannot be hijacked", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	w.upgraded = true
	return hj.Hijack()
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type middlewareOptions struct {
	routes []string
	quiet  []string
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middlewareOptions)

// WithRoutes lists the paths reported verbatim in the path metric label.
// Any other path is reported as "other". Without it every path is reported
// verbatim.
func WithRoutes(paths ...string) MiddlewareOption {
	return func(o *middlewareOptions) { o.routes = append(o.routes, paths...) }
}

// WithQuietPaths demotes the completion log of the given paths to debug.
// Probe and scrape endpoints use it.
func WithQuietPaths(paths ...string) MiddlewareOption {
	return func(o *middlewareOptions) { o.quiet = append(o.quiet, paths...) }
}

// Middleware traces every request, continuing a W3C trace context when the
// client sends one, and echoes the trace ID in [CorrelationHeader]. Request
// duration goes to [Metrics.HTTPRequestDuration]. For websocket routes the
// recorded duration spans the whole socket session.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var o middlewareOptions
	for _, opt := range opts {
		opt(&o)
	}
	route := func(path string) string {
		if len(o.routes) == 0 || slices.Contains(o.routes, path) {
			return path
		}
		return otherRoute
	}
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			elapsed := time.Since(start)
			if m != nil {
				m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", path),
				))
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))

			level := slog.LevelInfo
			if slices.Contains(o.quiet, r.URL.Path) {
				level = slog.LevelDebug
			}
			msg := "request completed"
			if rw.upgraded {
				msg = "socket closed"
			}
			slog.LogAttrs(ctx, level, msg,
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
