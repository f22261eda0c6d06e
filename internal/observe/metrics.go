// Package observe carries talkbuddy's telemetry: OpenTelemetry instruments
// exported to Prometheus, session and utterance spans, trace-tagged slog
// loggers and the HTTP middleware that starts the request trace.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/talkbuddy"

// Utterance outcomes recorded on [Metrics.Utterances].
const (
	OutcomeAccepted        = "accepted"
	OutcomeRejectedShort   = "rejected_short"
	OutcomeRejectedNoise   = "rejected_noise"
	OutcomeEmptyTranscript = "empty_transcript"
	OutcomeFailed          = "failed"
)

// Metrics groups the instruments recorded by the pipeline, the provider
// wrappers and the HTTP layer.
type Metrics struct {
	// Latency histograms, in seconds.
	STTDuration         metric.Float64Histogram
	LLMDuration         metric.Float64Histogram
	VerifyDuration      metric.Float64Histogram // per frame
	EmbeddingDuration   metric.Float64Histogram
	PoolWait            metric.Float64Histogram
	HTTPRequestDuration metric.Float64Histogram // method, path

	ProviderRequests metric.Int64Counter // provider, kind, status
	ProviderErrors   metric.Int64Counter // provider, kind
	FramesProcessed  metric.Int64Counter // variant
	Utterances       metric.Int64Counter // variant, outcome
	CoachFirings     metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter // variant
}

// Frame verification sits in the low milliseconds while transcription and
// completions take seconds, so the buckets span both.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument on mp. Tests pass a provider backed
// by a manual reader.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var (
		met  Metrics
		errs []error
	)
	latency := func(dst *metric.Float64Histogram, name, desc string) {
		h, err := meter.Float64Histogram("talkbuddy."+name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		*dst = h
		errs = append(errs, err)
	}
	counter := func(dst *metric.Int64Counter, name, desc string) {
		c, err := meter.Int64Counter("talkbuddy."+name, metric.WithDescription(desc))
		*dst = c
		errs = append(errs, err)
	}

	latency(&met.STTDuration, "stt.duration", "Utterance transcription latency.")
	latency(&met.LLMDuration, "llm.duration", "Dialogue completion latency.")
	latency(&met.VerifyDuration, "verify.duration", "Speaker verification latency per frame.")
	latency(&met.EmbeddingDuration, "embeddings.duration", "Memory embedding latency.")
	latency(&met.PoolWait, "workpool.wait", "Time waiting for a worker slot.")
	latency(&met.HTTPRequestDuration, "http.request.duration", "HTTP request latency; socket routes cover the whole session.")

	counter(&met.ProviderRequests, "provider.requests", "Provider calls by provider, kind and status.")
	counter(&met.ProviderErrors, "provider.errors", "Provider failures by provider and kind.")
	counter(&met.FramesProcessed, "frames.processed", "Scored audio frames by session variant.")
	counter(&met.Utterances, "utterances", "Finalized utterances by variant and outcome.")
	counter(&met.CoachFirings, "coach.firings", "Coaching hints sent.")

	var err error
	met.ActiveSessions, err = meter.Int64UpDownCounter("talkbuddy.active_sessions",
		metric.WithDescription("Live socket sessions by variant."))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return &met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds a [Metrics] on the global meter provider and
// returns the same instance on every call. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance records one finalized utterance with its outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, variant, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordFrame records one verified frame.
func (m *Metrics) RecordFrame(ctx context.Context, variant string) {
	m.FramesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("variant", variant)))
}

// ObserveDuration records time.Since(start) on h.
func ObserveDuration(ctx context.Context, h metric.Float64Histogram, start time.Time) {
	h.Record(ctx, time.Since(start).Seconds())
}
