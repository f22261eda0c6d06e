// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The pipeline transcribes whole utterances: once segmentation has finalised
// an utterance its PCM is handed to Transcribe together with the decode
// options chosen for the speaker's trust level. Providers map the options they
// support onto their engine and ignore the rest; post-filtering by segment
// statistics happens one layer up.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"strings"
)

// DecodeOptions tunes the decoder for one request.
type DecodeOptions struct {
	// BeamSize and BestOf control the search width.
	BeamSize int
	BestOf   int

	// Temperature is the sampling temperature; 0 is greedy decoding.
	Temperature float64

	// ConditionOnPrevious lets the decoder use earlier text in the same
	// request as a prompt.
	ConditionOnPrevious bool

	// NoSpeechThreshold, LogProbThreshold and CompressionRatioThreshold gate
	// individual segments; see transcribe.Adapter. Trusted requests use the
	// compression threshold only as a decoder hint.
	NoSpeechThreshold         float64
	LogProbThreshold          float64
	CompressionRatioThreshold float64

	// FilterLowEnergy removes silent stretches before decoding.
	FilterLowEnergy bool
}

// Request is one batch transcription job.
type Request struct {
	// Audio is 16-bit mono PCM.
	Audio []int16

	// SampleRate of Audio in Hz.
	SampleRate int

	// Language is a BCP-47 code; empty lets the provider decide.
	Language string

	Options DecodeOptions
}

// Segment is one decoded span. Statistics a provider cannot report are left
// at their zero value.
type Segment struct {
	Text string

	// AvgLogProb is the mean token log-probability.
	AvgLogProb float64

	// NoSpeechProb is the model's probability that the span holds no speech.
	NoSpeechProb float64
}

// Result is the outcome of a transcription. An empty Text is a valid
// "nothing intelligible" result, not an error.
type Result struct {
	Text     string
	Segments []Segment
}

// JoinSegments concatenates trimmed segment texts with single spaces.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe decodes req.Audio. It must honour ctx cancellation.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
