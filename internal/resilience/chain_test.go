package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/talkbuddy/internal/observe"
)

// backend is a fake provider that fails while down is set.
type backend struct {
	name string
	down bool
	hang bool
}

func (b *backend) transcribe(ctx context.Context) (string, error) {
	switch {
	case b.hang:
		<-ctx.Done()
		return "", ctx.Err()
	case b.down:
		return "", errBackend
	}
	return "text from " + b.name, nil
}

func newTestChain(cfg FallbackConfig, backends ...*backend) *Chain[*backend] {
	c := NewChain(backends[0], backends[0].name, cfg)
	for _, b := range backends[1:] {
		c.Add(b.name, b)
	}
	return c
}

func callChain(ctx context.Context, c *Chain[*backend], used *[]string) (string, error) {
	return Call(ctx, c, func(ctx context.Context, b *backend) (string, error) {
		*used = append(*used, b.name)
		return b.transcribe(ctx)
	})
}

func TestCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		backends []*backend
		want     string
		wantUsed []string
		wantErr  error
	}{
		{
			name:     "primary answers",
			backends: []*backend{{name: "whisper"}, {name: "deepgram"}},
			want:     "text from whisper",
			wantUsed: []string{"whisper"},
		},
		{
			name:     "fails over in order",
			backends: []*backend{{name: "whisper", down: true}, {name: "local", down: true}, {name: "deepgram"}},
			want:     "text from deepgram",
			wantUsed: []string{"whisper", "local", "deepgram"},
		},
		{
			name:     "all down",
			backends: []*backend{{name: "whisper", down: true}, {name: "deepgram", down: true}},
			wantUsed: []string{"whisper", "deepgram"},
			wantErr:  ErrAllFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var used []string
			got, err := callChain(context.Background(), newTestChain(FallbackConfig{Kind: "stt"}, tt.backends...), &used)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Call error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Call = %q, want %q", got, tt.want)
			}
			if !slices.Equal(used, tt.wantUsed) {
				t.Errorf("tried %v, want %v", used, tt.wantUsed)
			}
			if tt.wantErr != nil && !errors.Is(err, errBackend) {
				t.Errorf("Call error = %v, want it to wrap the backend error", err)
			}
		})
	}
}

func TestCall_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	primary, spare := &backend{name: "ollama", down: true}, &backend{name: "openai"}
	c := newTestChain(FallbackConfig{Breaker: BreakerConfig{Threshold: 2, Cooldown: time.Hour}}, primary, spare)

	var used []string
	for range 2 {
		_, _ = callChain(context.Background(), c, &used)
	}
	used = nil
	if _, err := callChain(context.Background(), c, &used); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !slices.Equal(used, []string{"openai"}) {
		t.Errorf("tried %v, want only openai", used)
	}
	if got := c.States()["ollama"]; got != StateOpen {
		t.Errorf("ollama breaker = %v, want open", got)
	}
	if !c.Healthy() {
		t.Error("Healthy() = false while openai is closed")
	}

	spare.down = true
	for range 2 {
		_, _ = callChain(context.Background(), c, &used)
	}
	if c.Healthy() {
		t.Error("Healthy() = true with every breaker open")
	}
}

func TestCall_AttemptTimeout(t *testing.T) {
	t.Parallel()
	c := newTestChain(FallbackConfig{AttemptTimeout: 20 * time.Millisecond},
		&backend{name: "stuck", hang: true}, &backend{name: "deepgram"})

	var used []string
	got, err := callChain(context.Background(), c, &used)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "text from deepgram" {
		t.Errorf("Call = %q, want the fallback's text", got)
	}
}

func TestCall_StopsWhenCallerGone(t *testing.T) {
	t.Parallel()
	c := newTestChain(FallbackConfig{}, &backend{name: "whisper"}, &backend{name: "deepgram"})

	ctx, cancel := context.WithCancel(context.Background())
	var used []string
	_, err := Call(ctx, c, func(ctx context.Context, b *backend) (string, error) {
		used = append(used, b.name)
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Call error = %v, want context.Canceled", err)
	}
	if len(used) != 1 {
		t.Errorf("tried %v, want only the primary", used)
	}
	if c.States()["whisper"] != StateClosed {
		t.Error("cancellation counted against the primary")
	}
}

func TestCall_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	c := newTestChain(FallbackConfig{Kind: "llm", Metrics: m},
		&backend{name: "ollama", down: true}, &backend{name: "openai"})
	var used []string
	if _, err := callChain(context.Background(), c, &used); err != nil {
		t.Fatalf("Call: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	totals := make(map[string]int64)
	var latencySamples uint64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					totals[md.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				if md.Name == "talkbuddy.llm.duration" {
					for _, dp := range data.DataPoints {
						latencySamples += dp.Count
					}
				}
			}
		}
	}
	if got := totals["talkbuddy.provider.requests"]; got != 2 {
		t.Errorf("provider requests = %d, want 2", got)
	}
	if got := totals["talkbuddy.provider.errors"]; got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if latencySamples != 2 {
		t.Errorf("llm latency samples = %d, want 2", latencySamples)
	}
}
