// Package vad defines the Engine interface for frame-level voice activity
// detection.
//
// A VAD engine classifies individual PCM frames as speech or silence. It does
// not group frames into utterances; that is the segmenter's job. Each stream
// gets its own SessionHandle so engines that smooth over time can keep
// per-stream state.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle is owned by one goroutine.
package vad

import "errors"

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// SpeechThreshold is the engine-specific level above which a frame counts
	// as speech. For the energy engine it is normalised RMS in [0, 1].
	SpeechThreshold float64
}

// Decision is the classification of one frame.
type Decision struct {
	// Speech reports whether the frame contains voice activity.
	Speech bool

	// Level is the measured value compared against SpeechThreshold.
	Level float64
}

// SessionHandle is an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame classifies one frame of 16-bit mono PCM. It must not block.
	ProcessFrame(frame []int16) (Decision, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession returns a session ready to accept frames, or an error when
	// cfg is invalid for this engine.
	NewSession(cfg Config) (SessionHandle, error)
}
