package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// testMetrics builds Metrics on a manual reader.
func testMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collected returns everything reader holds, keyed by instrument name.
func collected(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			out[md.Name] = md.Data
		}
	}
	return out
}

// recorded runs record against fresh Metrics and returns what was collected.
func recorded(t *testing.T, record func(ctx context.Context, m *Metrics)) map[string]metricdata.Aggregation {
	t.Helper()
	m, reader := testMetrics(t)
	record(context.Background(), m)
	return collected(t, reader)
}

// total sums the int64 points of a counter whose attributes include every
// pair in match.
func total(t *testing.T, data metricdata.Aggregation, match ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("aggregation %T is not an int64 sum", data)
	}
	var n int64
	for _, dp := range sum.DataPoints {
		hit := true
		for _, kv := range match {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				hit = false
			}
		}
		if hit {
			n += dp.Value
		}
	}
	return n
}

func TestCounters(t *testing.T) {
	t.Parallel()

	got := recorded(t, func(ctx context.Context, m *Metrics) {
		m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
		m.RecordProviderRequest(ctx, "whisper", "stt", "ok")
		m.RecordProviderRequest(ctx, "deepgram", "stt", "error")
		m.RecordProviderError(ctx, "deepgram", "stt")
		m.RecordUtterance(ctx, "conversation", OutcomeRejectedNoise)
		m.RecordUtterance(ctx, "conversation", OutcomeAccepted)
		m.RecordUtterance(ctx, "talk", OutcomeAccepted)
		for range 3 {
			m.RecordFrame(ctx, "talk")
		}
		m.CoachFirings.Add(ctx, 1)
		talk := metric.WithAttributes(Attr("variant", "talk"))
		m.ActiveSessions.Add(ctx, 1, talk)
		m.ActiveSessions.Add(ctx, 1, talk)
		m.ActiveSessions.Add(ctx, -1, talk)
	})

	tests := []struct {
		metric string
		match  []attribute.KeyValue
		want   int64
	}{
		{"talkbuddy.provider.requests", []attribute.KeyValue{Attr("status", "ok")}, 2},
		{"talkbuddy.provider.requests", []attribute.KeyValue{Attr("provider", "deepgram"), Attr("status", "error")}, 1},
		{"talkbuddy.provider.errors", []attribute.KeyValue{Attr("kind", "stt")}, 1},
		{"talkbuddy.utterances", []attribute.KeyValue{Attr("outcome", OutcomeAccepted)}, 2},
		{"talkbuddy.utterances", []attribute.KeyValue{Attr("variant", "conversation"), Attr("outcome", OutcomeRejectedNoise)}, 1},
		{"talkbuddy.frames.processed", []attribute.KeyValue{Attr("variant", "talk")}, 3},
		{"talkbuddy.coach.firings", nil, 1},
		{"talkbuddy.active_sessions", []attribute.KeyValue{Attr("variant", "talk")}, 1},
	}
	for _, tt := range tests {
		data, ok := got[tt.metric]
		if !ok {
			t.Errorf("%s not collected", tt.metric)
			continue
		}
		if n := total(t, data, tt.match...); n != tt.want {
			t.Errorf("%s%v = %d, want %d", tt.metric, tt.match, n, tt.want)
		}
	}
}

func TestLatencyHistograms(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(-250 * time.Millisecond)
	got := recorded(t, func(ctx context.Context, m *Metrics) {
		for _, h := range []metric.Float64Histogram{
			m.STTDuration, m.LLMDuration, m.VerifyDuration,
			m.EmbeddingDuration, m.PoolWait, m.HTTPRequestDuration,
		} {
			ObserveDuration(ctx, h, start)
			h.Record(ctx, 0.01)
		}
	})

	for _, name := range []string{
		"talkbuddy.stt.duration", "talkbuddy.llm.duration", "talkbuddy.verify.duration",
		"talkbuddy.embeddings.duration", "talkbuddy.workpool.wait", "talkbuddy.http.request.duration",
	} {
		hist, ok := got[name].(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) != 1 {
			t.Errorf("%s: want one histogram point, got %T", name, got[name])
			continue
		}
		dp := hist.DataPoints[0]
		if dp.Count != 2 {
			t.Errorf("%s: count = %d, want 2", name, dp.Count)
		}
		if len(dp.Bounds) != len(latencyBuckets) {
			t.Errorf("%s: %d bounds, want %d", name, len(dp.Bounds), len(latencyBuckets))
		}
		if hi, ok := dp.Max.Value(); !ok || hi < 0.25 {
			t.Errorf("%s: max = %v, want >= 0.25s from ObserveDuration", name, hi)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
