// Package coach decides when a registered speaker is struggling and a
// coaching hint should be generated.
//
// [ShouldFire] is the pure decision; [Trigger] wraps it with the per-session
// last-fire timestamp and a clock.
package coach

import (
	"strings"
	"sync"
	"time"
)

// DefaultMarkers are the hesitation markers counted in a transcript.
// Multi-word markers overlap with their parts and are counted separately.
func DefaultMarkers() []string {
	return []string{
		"uh", "um", "umm", "hmm", "ha", "ah",
		"i", "i i", "i uh", "i um",
		"i think", "maybe", "like", "you know",
	}
}

const (
	// DefaultThreshold is the marker count at which the speaker is
	// considered struggling.
	DefaultThreshold = 3

	// DefaultCooldown is the minimum gap between two firings.
	DefaultCooldown = 8 * time.Second

	// DefaultPromptTemplate is the coaching request sent to the dialogue
	// adapter; %s is replaced by the transcript.
	DefaultPromptTemplate = "User is struggling. Suggest one confident sentence.\nUser said: %s"
)

// Config tunes a [Trigger]. Zero fields take the defaults.
type Config struct {
	Markers        []string
	Threshold      int
	Cooldown       time.Duration
	PromptTemplate string
}

func (c Config) withDefaults() Config {
	if len(c.Markers) == 0 {
		c.Markers = DefaultMarkers()
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.PromptTemplate == "" {
		c.PromptTemplate = DefaultPromptTemplate
	}
	return c
}

// CountMarkers sums the non-overlapping substring occurrences of each marker
// in the lower-cased text. Markers are matched as plain substrings, so "i"
// also counts inside "think".
func CountMarkers(text string, markers []string) int {
	norm := strings.ToLower(text)
	n := 0
	for _, m := range markers {
		if m == "" {
			continue
		}
		n += strings.Count(norm, m)
	}
	return n
}

// ShouldFire reports whether text warrants coaching. lastFire is the time of
// the previous firing; the zero time means there was none.
func ShouldFire(text string, markers []string, threshold int, cooldown time.Duration, lastFire, now time.Time) bool {
	if CountMarkers(text, markers) < threshold {
		return false
	}
	return lastFire.IsZero() || now.Sub(lastFire) > cooldown
}

// Prompt renders the coaching request for text.
func Prompt(template, text string) string {
	return strings.Replace(template, "%s", text, 1)
}

// Option configures a [Trigger].
type Option func(*Trigger)

// WithClock overrides time.Now; used in tests.
func WithClock(now func() time.Time) Option { return func(t *Trigger) { t.now = now } }

// Trigger is the per-session coaching state. It is safe for concurrent use,
// though a session only calls it from its segmentation goroutine.
type Trigger struct {
	cfg Config
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewTrigger creates a Trigger that has never fired.
func NewTrigger(cfg Config, opts ...Option) *Trigger {
	t := &Trigger{cfg: cfg.withDefaults(), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Check evaluates text and returns the coaching prompt with ok == true when
// coaching is due. The cooldown only starts once [Trigger.Fired] is called,
// so a hint that never reached the speaker does not suppress the next one.
func (t *Trigger) Check(text string) (prompt string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !ShouldFire(text, t.cfg.Markers, t.cfg.Threshold, t.cfg.Cooldown, t.last, t.now()) {
		return "", false
	}
	return Prompt(t.cfg.PromptTemplate, text), true
}

// Fired starts the cooldown. Call it after the hint was delivered.
func (t *Trigger) Fired() {
	t.mu.Lock()
	t.last = t.now()
	t.mu.Unlock()
}

// LastFired returns the time of the most recent firing, or the zero time.
func (t *Trigger) LastFired() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
