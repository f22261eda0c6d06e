package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory span exporter as the global provider
// for the duration of the test. Tests using it must not run in parallel.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestUtteranceSpan_IsChildOfSession(t *testing.T) {
	exp := useRecorder(t)

	ctx, sess := StartSessionSpan(context.Background(), "sess-42", "conversation")
	_, utt := StartUtteranceSpan(ctx, 37, true)
	utt.End()
	sess.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	u, s := spans[0], spans[1]
	if s.Name != "session conversation" {
		t.Errorf("session span name = %q, want %q", s.Name, "session conversation")
	}
	if u.Parent.SpanID() != s.SpanContext.SpanID() {
		t.Error("utterance span is not a child of the session span")
	}
	if v, ok := attrValue(s.Attributes, AttrSessionID); !ok || v.AsString() != "sess-42" {
		t.Errorf("session id attribute = %v, want sess-42", v.Emit())
	}
	if v, ok := attrValue(u.Attributes, AttrFrames); !ok || v.AsInt64() != 37 {
		t.Errorf("frames attribute = %v, want 37", v.Emit())
	}
	if v, ok := attrValue(u.Attributes, AttrRegistered); !ok || !v.AsBool() {
		t.Errorf("registered attribute = %v, want true", v.Emit())
	}
}

func TestEndSpan(t *testing.T) {
	exp := useRecorder(t)

	_, ok := StartSpan(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	EndSpan(failed, errors.New("stt unavailable"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if got := spans[0].Status.Code; got != codes.Unset {
		t.Errorf("clean span status = %v, want %v", got, codes.Unset)
	}
	if got := spans[1].Status.Code; got != codes.Error {
		t.Errorf("failed span status = %v, want %v", got, codes.Error)
	}
	if got := spans[1].Status.Description; got != "stt unavailable" {
		t.Errorf("failed span description = %q, want %q", got, "stt unavailable")
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no recorded error event")
	}
}

func TestCorrelationID(t *testing.T) {
	useRecorder(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	hex := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSessionSpan(context.Background(), "s", "talk")
		id := CorrelationID(ctx)
		span.End()
		if !hex.MatchString(id) {
			t.Fatalf("CorrelationID = %q, want 32 hex chars", id)
		}
		if seen[id] {
			t.Fatalf("duplicate correlation id %s", id)
		}
		seen[id] = true
	}
}

func TestLogger(t *testing.T) {
	useRecorder(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Logger(context.Background()).Info("no span")
	if bytes.Contains(buf.Bytes(), []byte("trace_id")) {
		t.Errorf("log without span has trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSessionSpan(context.Background(), "s", "talk")
	defer span.End()
	Logger(ctx).Info("in session")
	for _, want := range []string{"trace_id=" + CorrelationID(ctx), "span_id="} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("log output missing %q: %s", want, buf.String())
		}
	}
}
