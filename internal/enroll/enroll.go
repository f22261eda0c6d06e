// Package enroll builds the speaker profile that sessions verify against.
//
// An [Enroller] validates an uploaded WAV recording, clears long-term memory
// (a new speaker starts with a clean slate), feeds the recording to a
// verification profiler chunk by chunk until it reports full progress, and
// persists the exported profile.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/MrWong99/talkbuddy/internal/workpool"
	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/profile"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

var (
	// ErrNotWAV is returned for uploads whose filename lacks a .wav extension.
	ErrNotWAV = errors.New("enroll: WAV required")

	// ErrSampleRate is returned when the recording is not at the verifier's
	// sample rate.
	ErrSampleRate = errors.New("enroll: 16kHz audio required")
)

// IsClientError reports whether err was caused by the uploaded recording
// rather than by the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotWAV) ||
		errors.Is(err, ErrSampleRate) ||
		errors.Is(err, audio.ErrInvalidWAV) ||
		errors.Is(err, verify.ErrNotEnoughSpeech)
}

// Resetter clears stored state. *memory.Memory satisfies it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Result describes a completed enrollment.
type Result struct {
	Name     string
	Samples  int
	Chunks   int
	Progress float64
}

// Option configures an [Enroller].
type Option func(*Enroller)

// WithMemory resets m before each enrollment.
func WithMemory(m Resetter) Option {
	return func(e *Enroller) { e.memory = m }
}

// WithPool runs the profiler on p instead of the caller's goroutine.
func WithPool(p *workpool.Pool) Option {
	return func(e *Enroller) { e.pool = p }
}

// WithProfileName stores profiles under name instead of [profile.DefaultName].
func WithProfileName(name string) Option {
	return func(e *Enroller) { e.profileName = name }
}

// Enroller turns recordings into persisted speaker profiles.
type Enroller struct {
	engine      verify.Engine
	store       profile.Store
	memory      Resetter
	pool        *workpool.Pool
	profileName string
}

// New returns an Enroller writing profiles built by engine into store.
func New(engine verify.Engine, store profile.Store, opts ...Option) *Enroller {
	e := &Enroller{
		engine:      engine,
		store:       store,
		profileName: profile.DefaultName,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CheckFilename rejects uploads that are not named *.wav.
func CheckFilename(filename string) error {
	if !strings.EqualFold(filepath.Ext(filename), ".wav") {
		return fmt.Errorf("%w: got %q", ErrNotWAV, filename)
	}
	return nil
}

// Enroll reads a WAV recording from r and stores the resulting profile. name
// identifies the speaker in logs; filename is the uploaded file's name.
func (e *Enroller) Enroll(ctx context.Context, name, filename string, r io.Reader) (Result, error) {
	if err := CheckFilename(filename); err != nil {
		return Result{}, err
	}
	wav, err := audio.DecodeWAV(r)
	if err != nil {
		return Result{}, fmt.Errorf("enroll: %w", err)
	}
	if wav.SampleRate != e.engine.SampleRate() {
		return Result{}, fmt.Errorf("%w: got %d Hz", ErrSampleRate, wav.SampleRate)
	}
	return e.EnrollPCM(ctx, name, wav.Mono())
}

// EnrollPCM enrolls mono PCM at the engine's sample rate.
func (e *Enroller) EnrollPCM(ctx context.Context, name string, pcm []int16) (Result, error) {
	log := slog.With("speaker", name, "samples", len(pcm))

	if e.memory != nil {
		if err := e.memory.Reset(ctx); err != nil {
			log.Warn("enroll: failed to reset memory", "err", err)
		}
	}

	var res Result
	var data []byte
	build := func(ctx context.Context) error {
		var err error
		data, res, err = e.buildProfile(ctx, pcm)
		return err
	}
	var err error
	if e.pool != nil {
		err = workpool.Do(ctx, e.pool, build)
	} else {
		err = build(ctx)
	}
	if err != nil {
		return Result{}, err
	}

	if err := e.store.Save(ctx, e.profileName, data); err != nil {
		return Result{}, fmt.Errorf("enroll: save profile: %w", err)
	}
	res.Name = name
	log.Info("speaker enrolled", "chunks", res.Chunks)
	return res, nil
}

func (e *Enroller) buildProfile(ctx context.Context, pcm []int16) ([]byte, Result, error) {
	p, err := e.engine.NewProfiler()
	if err != nil {
		return nil, Result{}, fmt.Errorf("enroll: create profiler: %w", err)
	}
	defer p.Close()

	chunk := p.MinEnrollSamples()
	if chunk <= 0 {
		return nil, Result{}, fmt.Errorf("enroll: profiler chunk size must be positive, got %d", chunk)
	}

	res := Result{Samples: len(pcm)}
	for off := 0; res.Progress < 100; off += chunk {
		if err := ctx.Err(); err != nil {
			return nil, Result{}, err
		}
		if off+chunk > len(pcm) {
			return nil, Result{}, fmt.Errorf("enroll: %w (reached %.0f%%)", verify.ErrNotEnoughSpeech, res.Progress)
		}
		res.Progress, err = p.Enroll(ctx, pcm[off:off+chunk])
		if err != nil {
			return nil, Result{}, fmt.Errorf("enroll: feed profiler: %w", err)
		}
		res.Chunks++
	}

	data, err := p.Export()
	if err != nil {
		return nil, Result{}, fmt.Errorf("enroll: export profile: %w", err)
	}
	return data, res, nil
}
