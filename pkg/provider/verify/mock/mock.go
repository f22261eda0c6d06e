// Package mock provides test doubles for the verify package interfaces.
//
// Engine hands out Sessions that return scripted scores frame by frame, and
// a Profiler whose progress per chunk is configurable.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// Engine is a mock implementation of verify.Engine.
type Engine struct {
	mu sync.Mutex

	// Frame is returned by FrameLength; 512 when zero.
	Frame int

	// Scores are returned by successive Score calls of each new session;
	// once exhausted DefaultScore is returned. ScoreFunc takes precedence.
	Scores       []float64
	DefaultScore float64
	ScoreFunc    func(frame []int16) float64
	ScoreErr     error

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	// Profiler is returned by NewProfiler; a default Profiler when nil.
	Profiler *Profiler

	// Profiles records the profile passed to every NewSession call.
	Profiles [][]byte

	// Sessions holds every session created, in order.
	Sessions []*Session
}

var _ verify.Engine = (*Engine)(nil)

// FrameLength implements verify.Engine.
func (e *Engine) FrameLength() int {
	if e.Frame > 0 {
		return e.Frame
	}
	return 512
}

// SampleRate implements verify.Engine.
func (e *Engine) SampleRate() int { return 16000 }

// NewSession implements verify.Engine.
func (e *Engine) NewSession(profile []byte) (verify.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Profiles = append(e.Profiles, profile)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{
		Scores:       append([]float64(nil), e.Scores...),
		DefaultScore: e.DefaultScore,
		ScoreFunc:    e.ScoreFunc,
		ScoreErr:     e.ScoreErr,
	}
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// NewProfiler implements verify.Engine.
func (e *Engine) NewProfiler() (verify.Profiler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Profiler == nil {
		e.Profiler = &Profiler{}
	}
	return e.Profiler, nil
}

// Session is a mock implementation of verify.SessionHandle.
type Session struct {
	mu sync.Mutex

	Scores       []float64
	DefaultScore float64
	ScoreFunc    func(frame []int16) float64
	ScoreErr     error

	// FrameCount is the number of frames scored.
	FrameCount     int
	ResetCallCount int
	CloseCallCount int
}

var _ verify.SessionHandle = (*Session)(nil)

// Score returns the next scripted score.
func (s *Session) Score(_ context.Context, frame []int16) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.FrameCount
	s.FrameCount++
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if s.ScoreFunc != nil {
		return s.ScoreFunc(frame), nil
	}
	if idx < len(s.Scores) {
		return s.Scores[idx], nil
	}
	return s.DefaultScore, nil
}

// Reset increments ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close increments CloseCallCount.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Profiler is a mock implementation of verify.Profiler. Each Enroll call
// adds Step percent (25 when zero); Export returns Profile once progress
// reaches 100.
type Profiler struct {
	mu sync.Mutex

	MinSamples int
	Step       float64
	Profile    []byte
	EnrollErr  error

	Chunks   int
	progress float64
	Closed   bool
}

var _ verify.Profiler = (*Profiler)(nil)

// MinEnrollSamples implements verify.Profiler.
func (p *Profiler) MinEnrollSamples() int {
	if p.MinSamples > 0 {
		return p.MinSamples
	}
	return 16000
}

// Enroll implements verify.Profiler.
func (p *Profiler) Enroll(_ context.Context, _ []int16) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Chunks++
	if p.EnrollErr != nil {
		return p.progress, p.EnrollErr
	}
	step := p.Step
	if step == 0 {
		step = 25
	}
	p.progress = min(100, p.progress+step)
	return p.progress, nil
}

// Export implements verify.Profiler.
func (p *Profiler) Export() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress < 100 {
		return nil, verify.ErrNotEnoughSpeech
	}
	if p.Profile == nil {
		return []byte("mock-profile"), nil
	}
	return p.Profile, nil
}

// Close implements verify.Profiler.
func (p *Profiler) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}
