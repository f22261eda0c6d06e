// Package transcribe turns a finalised utterance into text.
//
// The [Adapter] picks decode options from the speaker's trust level, strips
// low-energy stretches from untrusted audio, drops segments the decoder marks
// as silence or degenerate, and finally applies the repetition guard to
// untrusted text. An empty result means "nothing intelligible" and is not an
// error.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
	"github.com/MrWong99/talkbuddy/pkg/provider/vad"
	"github.com/MrWong99/talkbuddy/pkg/provider/vad/energy"
)

const (
	defaultLanguage        = "en"
	defaultFilterThreshold = 0.006
	defaultFilterFrame     = 512
	defaultPadFrames       = 6
)

// Option configures an [Adapter].
type Option func(*Adapter)

// WithLanguage sets the language passed to the provider. Defaults to "en".
func WithLanguage(lang string) Option { return func(a *Adapter) { a.language = lang } }

// WithSampleRate sets the utterance sample rate. Defaults to 16 kHz.
func WithSampleRate(sr int) Option { return func(a *Adapter) { a.sampleRate = sr } }

// WithLowEnergyFilter replaces the engine and threshold used to find
// speech in untrusted audio. The default is the energy engine at 0.006.
func WithLowEnergyFilter(e vad.Engine, threshold float64) Option {
	return func(a *Adapter) {
		a.vad = e
		a.filterThreshold = threshold
	}
}

// WithPadFrames sets how many frames of context are kept on both sides of
// detected speech when filtering.
func WithPadFrames(n int) Option { return func(a *Adapter) { a.padFrames = n } }

// Adapter wraps an [stt.Provider] with trust-dependent decoding and output
// filtering. It is safe for concurrent use.
type Adapter struct {
	provider        stt.Provider
	language        string
	sampleRate      int
	vad             vad.Engine
	filterThreshold float64
	filterFrame     int
	padFrames       int
}

// New creates an Adapter over p.
func New(p stt.Provider, opts ...Option) *Adapter {
	a := &Adapter{
		provider:        p,
		language:        defaultLanguage,
		sampleRate:      audio.SampleRate,
		vad:             energy.New(),
		filterThreshold: defaultFilterThreshold,
		filterFrame:     defaultFilterFrame,
		padFrames:       defaultPadFrames,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Transcribe decodes pcm. trusted selects the decode options; see [Options].
func (a *Adapter) Transcribe(ctx context.Context, pcm []int16, trusted bool) (string, error) {
	opts := Options(trusted)

	input := pcm
	if opts.FilterLowEnergy {
		filtered, err := a.filterLowEnergy(pcm)
		if err != nil {
			return "", err
		}
		if len(filtered) == 0 {
			slog.Debug("transcribe: no speech after low-energy filter", "samples", len(pcm))
			return "", nil
		}
		input = filtered
	}

	res, err := a.provider.Transcribe(ctx, stt.Request{
		Audio:      input,
		SampleRate: a.sampleRate,
		Language:   a.language,
		Options:    opts,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := a.collect(res, opts, !trusted)
	if !trusted && IsRepetition(text) {
		slog.Debug("transcribe: dropped repetitive output", "text", text)
		return "", nil
	}
	return text, nil
}

func (a *Adapter) collect(res stt.Result, opts stt.DecodeOptions, strict bool) string {
	if len(res.Segments) == 0 {
		return strings.TrimSpace(res.Text)
	}
	kept := make([]stt.Segment, 0, len(res.Segments))
	for _, seg := range res.Segments {
		if keepSegment(seg, opts, strict) {
			kept = append(kept, seg)
		}
	}
	return stt.JoinSegments(kept)
}

// filterLowEnergy keeps only frames within padFrames of a speech frame.
// The trailing partial frame is classified like any other.
func (a *Adapter) filterLowEnergy(pcm []int16) ([]int16, error) {
	sess, err := a.vad.NewSession(vad.Config{SampleRate: a.sampleRate, SpeechThreshold: a.filterThreshold})
	if err != nil {
		return nil, fmt.Errorf("transcribe: low-energy filter: %w", err)
	}
	defer sess.Close()

	n := (len(pcm) + a.filterFrame - 1) / a.filterFrame
	speech := make([]bool, n)
	for i := range n {
		end := min((i+1)*a.filterFrame, len(pcm))
		d, err := sess.ProcessFrame(pcm[i*a.filterFrame : end])
		if err != nil {
			return nil, fmt.Errorf("transcribe: low-energy filter: %w", err)
		}
		speech[i] = d.Speech
	}

	keep := make([]bool, n)
	for i, s := range speech {
		if !s {
			continue
		}
		for j := max(0, i-a.padFrames); j <= min(n-1, i+a.padFrames); j++ {
			keep[j] = true
		}
	}

	out := make([]int16, 0, len(pcm))
	for i, k := range keep {
		if k {
			end := min((i+1)*a.filterFrame, len(pcm))
			out = append(out, pcm[i*a.filterFrame:end]...)
		}
	}
	return out, nil
}
