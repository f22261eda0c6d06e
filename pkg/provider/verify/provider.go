// Package verify defines the Engine interface for frame-level speaker
// verification.
//
// An Engine is built around an enrolled speaker profile. Each live stream
// borrows its own SessionHandle for the lifetime of the stream and scores
// fixed-size frames against the profile; the caller applies the threshold.
// Profiles are produced by a Profiler from enrollment audio and are opaque
// bytes to everything outside the engine.
//
// Implementations must be safe for concurrent use across sessions. A
// SessionHandle is owned by one goroutine at a time.
package verify

import (
	"context"
	"errors"
)

var (
	// ErrNotEnoughSpeech is returned when enrollment audio runs out before the
	// profiler reaches full progress.
	ErrNotEnoughSpeech = errors.New("verify: not enough clean speech")

	// ErrInvalidProfile is returned when profile bytes cannot be decoded.
	ErrInvalidProfile = errors.New("verify: invalid speaker profile")

	// ErrClosed is returned by operations on a closed session or profiler.
	ErrClosed = errors.New("verify: closed")
)

// SessionHandle scores frames of one audio stream against the enrolled
// speaker.
type SessionHandle interface {
	// Score returns the similarity of frame to the enrolled speaker in
	// [0, 1]. The frame must hold exactly FrameLength samples of 16-bit mono
	// PCM at SampleRate.
	Score(ctx context.Context, frame []int16) (float64, error)

	// Reset clears per-stream state such as sliding windows.
	Reset()

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Profiler builds a speaker profile from enrollment audio.
type Profiler interface {
	// MinEnrollSamples is the chunk size Enroll expects.
	MinEnrollSamples() int

	// Enroll consumes one chunk and returns the overall progress in percent
	// [0, 100].
	Enroll(ctx context.Context, pcm []int16) (float64, error)

	// Export returns the profile bytes. It fails until progress reaches 100.
	Export() ([]byte, error)

	// Close releases the profiler.
	Close() error
}

// Engine creates sessions and profilers.
type Engine interface {
	// FrameLength is the number of samples per scored frame.
	FrameLength() int

	// SampleRate is the required sample rate in Hz.
	SampleRate() int

	// NewSession returns a session scoring against profile.
	NewSession(profile []byte) (SessionHandle, error)

	// NewProfiler returns a fresh enrollment profiler.
	NewProfiler() (Profiler, error)
}

// Verified applies threshold to a score. Scores equal to the threshold pass.
func Verified(score, threshold float64) bool {
	return score >= threshold
}
