// Package resilience keeps a coaching session answering when a transcription
// or dialogue backend misbehaves. A [Breaker] stops calling a backend after
// repeated failures; a [Chain] tries backends in order and skips those whose
// breaker is open. [LLMFallback] and [STTFallback] expose a chain as the
// provider interface itself.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when a breaker refuses a call.
var ErrOpen = errors.New("resilience: circuit open")

// State is the mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen refuses calls until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets a few trial calls through to decide whether the
	// backend recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults noted.
type BreakerConfig struct {
	Name string

	// Threshold is the run of consecutive failures that opens the breaker.
	// Default 5.
	Threshold int

	// Cooldown is how long the breaker stays open. Default 30s.
	Cooldown time.Duration

	// Probes is the number of successful trial calls needed to close a
	// half-open breaker. At most Probes trial calls are in flight at once.
	// Default 3.
	Probes int

	// IsFailure classifies errors. By default context cancellation is
	// neutral: a user hanging up mid-utterance says nothing about the
	// backend.
	IsFailure func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int // trial calls running while half-open
	passed   int // trial calls that succeeded
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Do runs fn unless the breaker refuses, in which case it returns [ErrOpen].
func (b *Breaker) Do(fn func() error) error {
	report, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	report(err)
	return err
}

// Allow asks for permission to make one call. On success the caller must
// pass the call's result to report exactly once.
func (b *Breaker) Allow() (report func(error), err error) {
	b.mu.Lock()
	from := b.state
	if b.state == StateOpen {
		if b.cfg.Clock().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return nil, ErrOpen
		}
		b.state, b.inFlight, b.passed = StateHalfOpen, 0, 0
	}
	trial := b.state == StateHalfOpen
	if trial {
		if b.inFlight+b.passed >= b.cfg.Probes {
			b.mu.Unlock()
			b.notify(from, StateHalfOpen)
			return nil, ErrOpen
		}
		b.inFlight++
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)

	var once sync.Once
	return func(err error) { once.Do(func() { b.report(trial, err) }) }, nil
}

func (b *Breaker) report(trial bool, err error) {
	b.mu.Lock()
	from := b.state
	if trial && b.state == StateHalfOpen {
		b.inFlight--
	}
	switch {
	case err == nil:
		b.succeed(trial)
	case b.cfg.IsFailure(err):
		b.fail(trial)
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// succeed and fail run with b.mu held.
func (b *Breaker) succeed(trial bool) {
	if !trial {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.passed++
	if b.passed >= b.cfg.Probes {
		b.state, b.failures = StateClosed, 0
	}
}

func (b *Breaker) fail(trial bool) {
	b.failures++
	if trial || b.failures >= b.cfg.Threshold {
		b.state = StateOpen
		b.openedAt = b.cfg.Clock()
	}
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State reports the current mode. An open breaker whose cooldown has
// passed reports [StateHalfOpen] even before the next call moves it there.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Clock().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and forgets all failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.inFlight, b.passed = StateClosed, 0, 0, 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}
