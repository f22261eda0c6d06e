// In-process decoding through the whisper.cpp cgo bindings. Linking needs
// libwhisper.a and whisper.h on LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
)

// minTokenProb keeps log(p) finite for tokens whisper scores as zero.
const minTokenProb = 1e-10

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider decodes with a whisper.cpp model loaded once at startup.
// Each call gets its own decoder context; [WithMaxConcurrent] of them run at a
// time since every context holds its own KV cache.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
	prompt   string
	slots    *semaphore.Weighted
}

// NativeOption configures a NativeProvider.
type NativeOption func(*nativeSettings)

type nativeSettings struct {
	language      string
	threads       uint
	maxConcurrent int64
	prompt        string
}

// WithNativeLanguage sets the language used when a request names none.
func WithNativeLanguage(lang string) NativeOption {
	return func(s *nativeSettings) { s.language = lang }
}

// WithThreads sets the CPU threads per decode. The default is half the
// logical CPUs.
func WithThreads(n int) NativeOption {
	return func(s *nativeSettings) {
		if n > 0 {
			s.threads = uint(n)
		}
	}
}

// WithMaxConcurrent bounds simultaneous decodes. The default is 2.
func WithMaxConcurrent(n int) NativeOption {
	return func(s *nativeSettings) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithInitialPrompt primes the decoder, e.g. with vocabulary the learner
// is practising.
func WithInitialPrompt(p string) NativeOption {
	return func(s *nativeSettings) { s.prompt = p }
}

// NewNative loads the ggml model at modelPath. Call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	s := nativeSettings{
		language:      defaultLanguage,
		threads:       uint(max(1, runtime.NumCPU()/2)),
		maxConcurrent: 2,
	}
	for _, o := range opts {
		o(&s)
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load %s: %w", modelPath, err)
	}
	slog.Info("whisper model loaded", "path", modelPath,
		"multilingual", model.IsMultilingual(), "threads", s.threads, "max_concurrent", s.maxConcurrent)
	return &NativeProvider{
		model:    model,
		language: s.language,
		threads:  s.threads,
		prompt:   s.prompt,
		slots:    semaphore.NewWeighted(s.maxConcurrent),
	}, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe implements stt.Provider. Segments carry AvgLogProb from the
// token probabilities; whisper.cpp does not expose a no-speech probability.
// A cancelled ctx aborts the decode before the next encoder pass.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	defer p.slots.Release(1)

	dec, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: new context: %w", err)
	}
	p.configure(dec, req)

	keepGoing := func() bool { return ctx.Err() == nil }
	if err := dec.Process(int16ToFloat32(req.Audio), keepGoing, nil, nil); err != nil {
		if ctx.Err() != nil {
			return stt.Result{}, fmt.Errorf("whisper: %w", ctx.Err())
		}
		return stt.Result{}, fmt.Errorf("whisper: process: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}

	var res stt.Result
	for {
		s, err := dec.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: next segment: %w", err)
		}
		res.Segments = append(res.Segments, stt.Segment{Text: s.Text, AvgLogProb: avgLogProb(s.Tokens)})
	}
	res.Text = stt.JoinSegments(res.Segments)
	return res, nil
}

func (p *NativeProvider) configure(dec whisperlib.Context, req stt.Request) {
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := dec.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language not supported by model", "language", lang, "err", err)
	}
	dec.SetThreads(p.threads)
	if o := req.Options; o.BeamSize > 0 {
		dec.SetBeamSize(o.BeamSize)
	}
	dec.SetTemperature(float32(req.Options.Temperature))
	if !req.Options.ConditionOnPrevious {
		dec.SetMaxContext(0)
	}
	if req.Options.CompressionRatioThreshold > 0 {
		dec.SetEntropyThold(float32(req.Options.CompressionRatioThreshold))
	}
	if p.prompt != "" {
		dec.SetInitialPrompt(p.prompt)
	}
}

func avgLogProb(tokens []whisperlib.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += math.Log(math.Max(float64(t.P), minTokenProb))
	}
	return sum / float64(len(tokens))
}
