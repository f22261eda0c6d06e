package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/talkbuddy"

// Span attribute keys shared by the socket and pipeline layers.
const (
	AttrSessionID  = attribute.Key("talkbuddy.session.id")
	AttrVariant    = attribute.Key("talkbuddy.session.variant")
	AttrFrames     = attribute.Key("talkbuddy.utterance.frames")
	AttrRegistered = attribute.Key("talkbuddy.utterance.registered")
	AttrOutcome    = attribute.Key("talkbuddy.utterance.outcome")
)

// Tracer returns the talkbuddy tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartSessionSpan opens the root span of one socket session. Every
// utterance span of the session becomes its child.
func StartSessionSpan(ctx context.Context, sessionID, variant string) (context.Context, trace.Span) {
	return StartSpan(ctx, "session "+variant,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrSessionID.String(sessionID), AttrVariant.String(variant)),
	)
}

// StartUtteranceSpan opens a span covering gates, transcription and
// dialogue for a single finalized utterance.
func StartUtteranceSpan(ctx context.Context, frames int, registered bool) (context.Context, trace.Span) {
	return StartSpan(ctx, "utterance",
		trace.WithAttributes(AttrFrames.Int(frames), AttrRegistered.Bool(registered)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID is the hex trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger tagged with the trace and span IDs
// found in ctx. Without a span it is slog.Default unchanged.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
