package pipeline

import (
	"fmt"

	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/vad"
)

// Scored is one frame together with its verification result.
type Scored struct {
	Frame    audio.Frame
	Score    float64
	Verified bool
}

// Utterance is one finalised span of frames.
type Utterance struct {
	// PCM is the concatenation of all appended frames.
	PCM []int16

	// Frames is the number of frames in PCM.
	Frames int

	// MaxConfidence is the highest verification score among the appended
	// frames.
	MaxConfidence float64

	// Registered reports whether the utterance is attributed to the enrolled
	// speaker.
	Registered bool
}

// Seconds returns the utterance duration.
func (u Utterance) Seconds(sampleRate int) float64 {
	return audio.Seconds(len(u.PCM), sampleRate)
}

// utteranceBuffer accumulates frames and their running peak score.
type utteranceBuffer struct {
	pcm     []int16
	frames  int
	maxConf float64
}

func (b *utteranceBuffer) add(s Scored) {
	b.pcm = append(b.pcm, s.Frame...)
	b.frames++
	b.maxConf = max(b.maxConf, s.Score)
}

// take returns the buffered utterance and clears the buffer, including the
// peak score.
func (b *utteranceBuffer) take() Utterance {
	u := Utterance{PCM: b.pcm, Frames: b.frames, MaxConfidence: b.maxConf}
	b.pcm, b.frames, b.maxConf = nil, 0, 0
	return u
}

// Policy decides, frame by frame, where utterances start and end.
type Policy interface {
	// Push consumes one frame. It returns the utterance and true when the
	// frame ended one.
	Push(s Scored) (Utterance, bool, error)

	// Recording reports whether an utterance is in progress.
	Recording() bool

	// Close releases policy resources.
	Close() error
}

// VerificationPolicy segments on verification continuity. A verified frame
// starts or extends an utterance and refills the grace counter; while grace
// remains, unverified frames are still appended; the first unverified frame
// after grace runs out ends the utterance and is not part of it.
type VerificationPolicy struct {
	grace     int
	counter   int
	recording bool
	buf       utteranceBuffer
}

// NewVerificationPolicy returns a policy tolerating grace unverified frames.
func NewVerificationPolicy(grace int) *VerificationPolicy {
	return &VerificationPolicy{grace: grace}
}

// Push implements [Policy]. Finalised utterances are always attributed to
// the enrolled speaker.
func (p *VerificationPolicy) Push(s Scored) (Utterance, bool, error) {
	switch {
	case s.Verified:
		p.recording = true
		p.counter = p.grace
		p.buf.add(s)
	case p.recording && p.counter > 0:
		p.buf.add(s)
		p.counter--
	case p.recording:
		p.recording = false
		u := p.buf.take()
		u.Registered = true
		return u, true, nil
	}
	return Utterance{}, false, nil
}

// Recording implements [Policy].
func (p *VerificationPolicy) Recording() bool { return p.recording }

// Close implements [Policy].
func (p *VerificationPolicy) Close() error { return nil }

// EnergyPolicy segments on frame energy. Speech frames start or extend an
// utterance and reset the silence counter; silent frames inside an utterance
// are appended and counted; the utterance ends on the frame that brings the
// counter to maxSilence. The speaker is classified from the peak score.
type EnergyPolicy struct {
	vad        vad.SessionHandle
	maxSilence int
	threshold  float64
	silence    int
	recording  bool
	buf        utteranceBuffer
}

// NewEnergyPolicy returns a policy that classifies frames with sess.
// threshold is the verification threshold applied to the peak score.
func NewEnergyPolicy(sess vad.SessionHandle, maxSilence int, threshold float64) *EnergyPolicy {
	return &EnergyPolicy{vad: sess, maxSilence: maxSilence, threshold: threshold}
}

// Push implements [Policy].
func (p *EnergyPolicy) Push(s Scored) (Utterance, bool, error) {
	d, err := p.vad.ProcessFrame(s.Frame)
	if err != nil {
		return Utterance{}, false, fmt.Errorf("pipeline: classify frame: %w", err)
	}
	switch {
	case d.Speech:
		p.silence = 0
		p.recording = true
		p.buf.add(s)
	case p.recording:
		p.silence++
		p.buf.add(s)
	}
	if p.recording && p.silence >= p.maxSilence {
		p.recording = false
		p.silence = 0
		u := p.buf.take()
		u.Registered = u.MaxConfidence >= p.threshold
		return u, true, nil
	}
	return Utterance{}, false, nil
}

// Recording implements [Policy].
func (p *EnergyPolicy) Recording() bool { return p.recording }

// Close implements [Policy] and closes the VAD session.
func (p *EnergyPolicy) Close() error { return p.vad.Close() }
