package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/talkbuddy/internal/observe"
)

// ErrAllFailed is returned when no backend in a [Chain] produced a result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [Chain].
type FallbackConfig struct {
	// Kind is "llm" or "stt". It labels logs and metrics and selects the
	// latency histogram.
	Kind string

	// Breaker is the template for every backend's breaker. Name and
	// OnStateChange are set by the chain.
	Breaker BreakerConfig

	// AttemptTimeout bounds one call to one backend. A backend that hangs
	// would otherwise hold up the reply until the session gives up. Zero
	// means no bound beyond the caller's context.
	AttemptTimeout time.Duration

	Metrics *observe.Metrics
}

type link[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds backends of one kind in preference order. Add every backend
// before the chain is shared; it is then safe for concurrent use.
type Chain[T any] struct {
	cfg   FallbackConfig
	links []link[T]
}

// NewChain returns a chain whose first backend is primary.
func NewChain[T any](primary T, name string, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a backend behind those already added.
func (c *Chain[T]) Add(name string, backend T) {
	bc := c.cfg.Breaker
	bc.Name = name
	if c.cfg.Kind != "" {
		bc.Name = c.cfg.Kind + "/" + name
	}
	bc.OnStateChange = func(breaker string, from, to State) {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "provider breaker changed state",
			"breaker", breaker, "from", from.String(), "to", to.String())
	}
	c.links = append(c.links, link[T]{name: name, backend: backend, breaker: NewBreaker(bc)})
}

// Primary returns the first backend.
func (c *Chain[T]) Primary() T { return c.links[0].backend }

// Healthy reports whether some backend would accept a call. It backs the
// readiness probe.
func (c *Chain[T]) Healthy() bool {
	for _, l := range c.links {
		if l.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// States returns each backend's breaker state by name.
func (c *Chain[T]) States() map[string]State {
	out := make(map[string]State, len(c.links))
	for _, l := range c.links {
		out[l.name] = l.breaker.State()
	}
	return out
}

// Call runs fn against each backend in order and returns the first
// success. Backends with an open breaker are skipped. When ctx ends the
// chain stops and returns the context error.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		report, err := l.breaker.Allow()
		if err != nil {
			slog.Debug("provider skipped, breaker open", "kind", c.cfg.Kind, "provider", l.name)
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
			continue
		}

		start := time.Now()
		res, err := attempt(ctx, c.cfg.AttemptTimeout, l.backend, fn)
		report(err)
		c.observe(ctx, l.name, start, err)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		slog.Warn("provider failed, trying next", "kind", c.cfg.Kind, "provider", l.name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func attempt[T, R any](ctx context.Context, timeout time.Duration, backend T, fn func(context.Context, T) (R, error)) (R, error) {
	if timeout <= 0 {
		return fn(ctx, backend)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx, backend)
}

func (c *Chain[T]) observe(ctx context.Context, name string, start time.Time, err error) {
	m := c.cfg.Metrics
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, name, c.cfg.Kind)
	}
	m.RecordProviderRequest(ctx, name, c.cfg.Kind, status)
	switch c.cfg.Kind {
	case "llm":
		observe.ObserveDuration(ctx, m.LLMDuration, start)
	case "stt":
		observe.ObserveDuration(ctx, m.STTDuration, start)
	}
}
