// Package voiceprint implements verify.Engine on top of a speaker-embedding
// Model.
//
// A session keeps a sliding window of the most recent audio. Once the window
// holds enough samples, its embedding is compared with the enrolled profile
// embedding by cosine similarity, clamped to [0, 1]. Embeddings are refreshed
// every Hop frames; frames in between reuse the last score. A window whose
// energy is below the silence floor scores 0 without calling the model.
//
// Profiles are the mean of L2-normalised embeddings of clean enrollment
// chunks, serialised as:
//
//	"TBVP" | version (1 byte) | dims (uint32 LE) | dims × float32 LE
package voiceprint

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

const (
	profileMagic   = "TBVP"
	profileVersion = 1

	DefaultFrameLength   = 512
	DefaultWindowSamples = audio.SampleRate
	DefaultMinWindow     = 6400
	DefaultHop           = 4
	DefaultEnrollChunk   = audio.SampleRate
	DefaultEnrollChunks  = 5
	DefaultSilenceFloor  = 0.004
	DefaultEnrollFloor   = 0.01
)

var (
	_ verify.Engine        = (*Engine)(nil)
	_ verify.SessionHandle = (*session)(nil)
	_ verify.Profiler      = (*profiler)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithFrameLength sets the samples per scored frame.
func WithFrameLength(n int) Option { return func(e *Engine) { e.frameLength = n } }

// WithWindow sets the sliding window size and the minimum fill before the
// first score, both in samples.
func WithWindow(size, min int) Option {
	return func(e *Engine) { e.window, e.minWindow = size, min }
}

// WithHop sets how many frames share one embedding.
func WithHop(frames int) Option { return func(e *Engine) { e.hop = frames } }

// WithEnrollment sets the enrollment chunk size and the number of clean
// chunks needed for a complete profile.
func WithEnrollment(chunkSamples, chunks int) Option {
	return func(e *Engine) { e.enrollChunk, e.enrollChunks = chunkSamples, chunks }
}

// WithFloors sets the RMS floors for scoring and for enrollment chunks.
func WithFloors(silence, enroll float64) Option {
	return func(e *Engine) { e.silenceFloor, e.enrollFloor = silence, enroll }
}

// Engine is a verify.Engine backed by a Model.
type Engine struct {
	model        Model
	frameLength  int
	window       int
	minWindow    int
	hop          int
	enrollChunk  int
	enrollChunks int
	silenceFloor float64
	enrollFloor  float64
}

// New returns an Engine using model.
func New(model Model, opts ...Option) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("voiceprint: model must not be nil")
	}
	e := &Engine{
		model:        model,
		frameLength:  DefaultFrameLength,
		window:       DefaultWindowSamples,
		minWindow:    DefaultMinWindow,
		hop:          DefaultHop,
		enrollChunk:  DefaultEnrollChunk,
		enrollChunks: DefaultEnrollChunks,
		silenceFloor: DefaultSilenceFloor,
		enrollFloor:  DefaultEnrollFloor,
	}
	for _, o := range opts {
		o(e)
	}
	switch {
	case e.frameLength <= 0:
		return nil, fmt.Errorf("voiceprint: frame length must be positive")
	case e.minWindow <= 0 || e.minWindow > e.window:
		return nil, fmt.Errorf("voiceprint: min window %d must be in (0, %d]", e.minWindow, e.window)
	case e.hop <= 0:
		return nil, fmt.Errorf("voiceprint: hop must be positive")
	case e.enrollChunk <= 0 || e.enrollChunks <= 0:
		return nil, fmt.Errorf("voiceprint: enrollment chunk and count must be positive")
	}
	return e, nil
}

// FrameLength implements verify.Engine.
func (e *Engine) FrameLength() int { return e.frameLength }

// SampleRate implements verify.Engine.
func (e *Engine) SampleRate() int { return audio.SampleRate }

// NewSession implements verify.Engine.
func (e *Engine) NewSession(profile []byte) (verify.SessionHandle, error) {
	emb, err := DecodeProfile(profile)
	if err != nil {
		return nil, err
	}
	return &session{e: e, profile: emb, window: make([]int16, 0, e.window)}, nil
}

// NewProfiler implements verify.Engine.
func (e *Engine) NewProfiler() (verify.Profiler, error) {
	return &profiler{e: e}, nil
}

type session struct {
	e       *Engine
	profile []float32
	window  []int16
	frames  int
	last    float64
	scored  bool
	closed  bool
}

func (s *session) Score(ctx context.Context, frame []int16) (float64, error) {
	if s.closed {
		return 0, verify.ErrClosed
	}
	if len(frame) != s.e.frameLength {
		return 0, fmt.Errorf("voiceprint: frame has %d samples, want %d", len(frame), s.e.frameLength)
	}

	s.window = append(s.window, frame...)
	if over := len(s.window) - s.e.window; over > 0 {
		s.window = append(s.window[:0], s.window[over:]...)
	}
	s.frames++

	if len(s.window) < s.e.minWindow {
		return 0, nil
	}
	if s.scored && (s.frames-1)%s.e.hop != 0 {
		return s.last, nil
	}
	s.scored = true
	if audio.RMS(s.window) < s.e.silenceFloor {
		s.last = 0
		return 0, nil
	}

	emb, err := s.e.model.Extract(ctx, s.window)
	if err != nil {
		return 0, fmt.Errorf("voiceprint: score: %w", err)
	}
	s.last = clamp01(cosine(emb, s.profile))
	return s.last, nil
}

func (s *session) Reset() {
	s.window = s.window[:0]
	s.frames = 0
	s.last = 0
	s.scored = false
}

func (s *session) Close() error {
	s.closed = true
	s.window = nil
	return nil
}

type profiler struct {
	e      *Engine
	sum    []float64
	clean  int
	closed bool
}

func (p *profiler) MinEnrollSamples() int { return p.e.enrollChunk }

// Enroll counts a chunk towards progress only when it is at least
// MinEnrollSamples long and louder than the enrollment floor.
func (p *profiler) Enroll(ctx context.Context, pcm []int16) (float64, error) {
	if p.closed {
		return 0, verify.ErrClosed
	}
	if len(pcm) < p.e.enrollChunk || audio.RMS(pcm) < p.e.enrollFloor || p.clean >= p.e.enrollChunks {
		return p.progress(), nil
	}
	emb, err := p.e.model.Extract(ctx, pcm)
	if err != nil {
		return p.progress(), fmt.Errorf("voiceprint: enroll: %w", err)
	}
	if p.sum == nil {
		p.sum = make([]float64, len(emb))
	}
	if len(emb) != len(p.sum) {
		return p.progress(), fmt.Errorf("voiceprint: enroll: embedding has %d dims, want %d", len(emb), len(p.sum))
	}
	n := norm(emb)
	if n == 0 {
		return p.progress(), nil
	}
	for i, v := range emb {
		p.sum[i] += float64(v) / n
	}
	p.clean++
	return p.progress(), nil
}

func (p *profiler) progress() float64 {
	return math.Min(100, 100*float64(p.clean)/float64(p.e.enrollChunks))
}

func (p *profiler) Export() ([]byte, error) {
	if p.clean < p.e.enrollChunks {
		return nil, verify.ErrNotEnoughSpeech
	}
	mean := make([]float32, len(p.sum))
	for i, v := range p.sum {
		mean[i] = float32(v / float64(p.clean))
	}
	return EncodeProfile(mean), nil
}

func (p *profiler) Close() error {
	p.closed = true
	return nil
}

// EncodeProfile serialises a profile embedding.
func EncodeProfile(emb []float32) []byte {
	var buf bytes.Buffer
	buf.WriteString(profileMagic)
	buf.WriteByte(profileVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(emb)))
	_ = binary.Write(&buf, binary.LittleEndian, emb)
	return buf.Bytes()
}

// DecodeProfile parses bytes produced by EncodeProfile.
func DecodeProfile(data []byte) ([]float32, error) {
	const header = len(profileMagic) + 1 + 4
	if len(data) < header || string(data[:4]) != profileMagic {
		return nil, verify.ErrInvalidProfile
	}
	if data[4] != profileVersion {
		return nil, fmt.Errorf("%w: version %d", verify.ErrInvalidProfile, data[4])
	}
	dims := binary.LittleEndian.Uint32(data[5:9])
	if dims == 0 || uint64(len(data)-header) != uint64(dims)*4 {
		return nil, fmt.Errorf("%w: length mismatch", verify.ErrInvalidProfile)
	}
	emb := make([]float32, dims)
	if err := binary.Read(bytes.NewReader(data[header:]), binary.LittleEndian, emb); err != nil {
		return nil, fmt.Errorf("%w: %v", verify.ErrInvalidProfile, err)
	}
	return emb, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
