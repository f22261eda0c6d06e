package memory

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Guard wraps a LongTerm and makes Store and Recall non-fatal. When the
// underlying memory fails, the error is logged, a default is returned and the
// guard is marked degraded; the next success clears the flag.
//
// Reset is passed through unchanged because enrollment must not report success
// while old facts survive.
type Guard struct {
	inner    LongTerm
	degraded atomic.Bool
}

var _ LongTerm = (*Guard)(nil)

// NewGuard returns a Guard around inner.
func NewGuard(inner LongTerm) *Guard {
	return &Guard{inner: inner}
}

// Store attempts to store text. On failure it logs and reports false, nil.
func (g *Guard) Store(ctx context.Context, text string) (bool, error) {
	ok, err := g.inner.Store(ctx, text)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("memory guard: Store failed, swallowing error", "err", err)
		return false, nil
	}
	g.degraded.Store(false)
	return ok, nil
}

// Recall attempts a lookup. On failure it logs and returns no facts.
func (g *Guard) Recall(ctx context.Context, query string, k int) ([]string, error) {
	facts, err := g.inner.Recall(ctx, query, k)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("memory guard: Recall failed, returning empty", "err", err)
		return []string{}, nil
	}
	g.degraded.Store(false)
	return facts, nil
}

// Reset delegates to the wrapped memory.
func (g *Guard) Reset(ctx context.Context) error {
	return g.inner.Reset(ctx)
}

// IsDegraded reports whether the most recent Store or Recall failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
