// Package energy implements vad.Engine with a fixed RMS threshold. It needs no
// model and has no per-stream state beyond its configuration.
package energy

import (
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/vad"
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Engine creates RMS-threshold sessions.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine { return &Engine{} }

// NewSession implements vad.Engine. SpeechThreshold must lie in (0, 1).
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold >= 1 {
		return nil, fmt.Errorf("energy: speech threshold %v out of range (0, 1)", cfg.SpeechThreshold)
	}
	return &session{threshold: cfg.SpeechThreshold}, nil
}

type session struct {
	threshold float64
	closed    atomic.Bool
}

// ProcessFrame reports speech when the frame's normalised RMS is strictly
// above the threshold.
func (s *session) ProcessFrame(frame []int16) (vad.Decision, error) {
	if s.closed.Load() {
		return vad.Decision{}, vad.ErrClosed
	}
	level := audio.RMS(frame)
	return vad.Decision{Speech: level > s.threshold, Level: level}, nil
}

func (s *session) Reset() {}

func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}
