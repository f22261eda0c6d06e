// Package mock scripts VAD decisions for segmenter tests.
//
//	sess := &mock.Session{Decisions: mock.Pattern("-SS---")}
package mock

import (
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/provider/vad"
)

// Pattern turns a string into decisions: 'S' is speech, any other rune
// silence.
func Pattern(p string) []vad.Decision {
	out := make([]vad.Decision, 0, len(p))
	for _, r := range p {
		out = append(out, vad.Decision{Speech: r == 'S', Level: level(r == 'S')})
	}
	return out
}

func level(speech bool) float64 {
	if speech {
		return 0.1
	}
	return 0
}

// Session replays Decisions in order, then Default.
type Session struct {
	Decisions []vad.Decision
	Default   vad.Decision

	// Err fails every frame when set.
	Err error

	mu     sync.Mutex
	seen   int
	resets int
	closed bool
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame([]int16) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return vad.Decision{}, vad.ErrClosed
	case s.Err != nil:
		return vad.Decision{}, s.Err
	}
	i := s.seen
	s.seen++
	if i < len(s.Decisions) {
		return s.Decisions[i], nil
	}
	return s.Default, nil
}

// Reset implements vad.SessionHandle. The script position is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Frames is the number of frames classified so far.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Resets is the number of Reset calls.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Engine hands out one Session per pattern, in order, and records the
// configs it was asked for.
type Engine struct {
	Patterns []string

	mu      sync.Mutex
	configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine. Past the last pattern it returns an
// all-silent session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &Session{}
	if i := len(e.configs); i < len(e.Patterns) {
		s.Decisions = Pattern(e.Patterns[i])
	}
	e.configs = append(e.configs, cfg)
	return s, nil
}

// Configs returns the configs of every NewSession call.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}
