package pipeline

import (
	"errors"
	"fmt"
)

// Variant selects the segmentation policy and the outbound message shapes of
// a session.
type Variant int

const (
	// VariantTalk serves a single enrolled speaker: verification continuity
	// drives segmentation and every accepted utterance gets a reply.
	VariantTalk Variant = iota

	// VariantConversation serves the enrolled speaker plus guests: frame
	// energy drives segmentation, the speaker is classified after the fact
	// and only the enrolled speaker is coached.
	VariantConversation
)

// String returns the variant name used in logs and metrics.
func (v Variant) String() string {
	switch v {
	case VariantTalk:
		return "talk"
	case VariantConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// Config holds the tunables of a session. A snapshot is taken when the
// session starts.
type Config struct {
	// SampleRate of the PCM stream in Hz.
	SampleRate int

	// VerifyThreshold is the score at or above which a frame is verified.
	VerifyThreshold float64

	// GraceFrames is how many unverified frames a talk utterance tolerates
	// before it ends.
	GraceFrames int

	// MinUtteranceSec is the shortest talk utterance that is transcribed.
	MinUtteranceSec float64

	// SpeechRMSThreshold is the normalised frame RMS above which a
	// conversation frame counts as speech.
	SpeechRMSThreshold float64

	// MaxSilenceFrames ends a conversation utterance.
	MaxSilenceFrames int

	// MinRegisteredSec and MinGuestSec are the shortest conversation
	// utterances accepted per speaker class.
	MinRegisteredSec float64
	MinGuestSec      float64

	// GuestRMSFloor rejects guest utterances quieter than this over their
	// whole length.
	GuestRMSFloor float64

	// QueueFrames bounds the frames buffered between ingestion and
	// segmentation.
	QueueFrames int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		SampleRate:         16000,
		VerifyThreshold:    0.70,
		GraceFrames:        20,
		MinUtteranceSec:    0.5,
		SpeechRMSThreshold: 0.006,
		MaxSilenceFrames:   18,
		MinRegisteredSec:   0.5,
		MinGuestSec:        1.0,
		GuestRMSFloor:      0.008,
		QueueFrames:        256,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.VerifyThreshold <= 0 || c.VerifyThreshold > 1 {
		errs = append(errs, fmt.Errorf("verify threshold must be in (0, 1], got %v", c.VerifyThreshold))
	}
	if c.GraceFrames < 0 {
		errs = append(errs, fmt.Errorf("grace frames must not be negative, got %d", c.GraceFrames))
	}
	if c.SpeechRMSThreshold <= 0 || c.SpeechRMSThreshold >= 1 {
		errs = append(errs, fmt.Errorf("speech rms threshold must be in (0, 1), got %v", c.SpeechRMSThreshold))
	}
	if c.MaxSilenceFrames <= 0 {
		errs = append(errs, fmt.Errorf("max silence frames must be positive, got %d", c.MaxSilenceFrames))
	}
	if c.MinUtteranceSec < 0 || c.MinRegisteredSec < 0 || c.MinGuestSec < 0 {
		errs = append(errs, errors.New("minimum utterance durations must not be negative"))
	}
	if c.GuestRMSFloor < 0 {
		errs = append(errs, fmt.Errorf("guest rms floor must not be negative, got %v", c.GuestRMSFloor))
	}
	if c.QueueFrames <= 0 {
		errs = append(errs, fmt.Errorf("queue frames must be positive, got %d", c.QueueFrames))
	}
	if len(errs) > 0 {
		return fmt.Errorf("pipeline: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
