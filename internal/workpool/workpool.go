// Package workpool provides the bounded worker pool shared by every session.
//
// Heavy calls (frame verification, transcription, dialogue generation,
// enrollment) are submitted through [Run]; at most Size of them execute at
// once. Waiters are admitted in FIFO order, so a burst from one session
// delays others but never starves them.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/talkbuddy/internal/observe"
)

// ErrClosed is returned by [Run] after [Pool.Close] has been called.
var ErrClosed = errors.New("workpool: closed")

// Pool bounds the number of concurrently executing tasks.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	metrics *observe.Metrics

	mu      sync.RWMutex
	closed  bool
	running sync.WaitGroup
}

// Option configures a [Pool].
type Option func(*Pool)

// WithMetrics records the time each task waits for a slot.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New creates a pool running at most size tasks at once. size < 1 is
// treated as 1.
func New(size int, opts ...Option) *Pool {
	size = max(size, 1)
	p := &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return p.size }

// acquire reserves a slot and registers the task with the close barrier.
func (p *Pool) acquire(ctx context.Context) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.running.Add(1)
	p.mu.RUnlock()

	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.running.Done()
		return fmt.Errorf("workpool: acquire: %w", err)
	}
	if p.metrics != nil {
		observe.ObserveDuration(ctx, p.metrics.PoolWait, start)
	}
	return nil
}

func (p *Pool) release() {
	p.sem.Release(1)
	p.running.Done()
}

// Close stops accepting new tasks and waits for running and queued ones to
// finish or give up.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.running.Wait()
}

// Run executes fn on a pool slot and returns its result. It blocks until a
// slot is free, ctx is done, or the pool is closed. fn runs on the calling
// goroutine; the pool only bounds concurrency.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.acquire(ctx); err != nil {
		return zero, err
	}
	defer p.release()
	return fn(ctx)
}

// Do is [Run] for tasks without a result.
func Do(ctx context.Context, p *Pool, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
