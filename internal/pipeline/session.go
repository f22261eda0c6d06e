// Package pipeline turns a socket's audio stream into coaching events.
//
// A [Session] owns one connection. Its ingestion goroutine converts incoming
// float32 payloads to PCM, slices them into verifier-sized frames, scores each
// frame on the shared worker pool and emits a status event immediately. Scored
// frames are queued to a single segmentation goroutine, which runs the
// variant's [Policy], applies the [Gates] and carries accepted utterances
// through transcription and dialogue before looking at the next frame.
//
// Status events therefore keep flowing while an utterance is being
// transcribed, and utterances of one session never overlap.
//
//	IDLE ──speech──▶ RECORDING ──end──▶ FINALIZING ──done──▶ IDLE
//	  any state ──disconnect/error──▶ CLOSED
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/talkbuddy/internal/coach"
	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/internal/protocol"
	"github.com/MrWong99/talkbuddy/internal/workpool"
	"github.com/MrWong99/talkbuddy/pkg/audio"
	"github.com/MrWong99/talkbuddy/pkg/provider/vad"
	"github.com/MrWong99/talkbuddy/pkg/provider/vad/energy"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// ErrDisconnected is returned by a [Source] when the client went away. The
// session stops without processing queued frames and Run returns nil.
//
// A Source that returns io.EOF instead signals the end of a finite stream:
// queued frames are still segmented and processed before Run returns.
var ErrDisconnected = errors.New("pipeline: client disconnected")

// Inbound is one message received from the client.
type Inbound struct {
	// Binary marks an audio payload of little-endian float32 samples.
	// Otherwise Data is a JSON control message.
	Binary bool
	Data   []byte
}

// Source yields inbound messages. Receive must return promptly once ctx is
// done.
type Source interface {
	Receive(ctx context.Context) (Inbound, error)
}

// Sink delivers outbound messages to the client.
type Sink interface {
	Send(ctx context.Context, msg protocol.Message) error
}

// Transcriber turns an utterance into text; see transcribe.Adapter.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16, trusted bool) (string, error)
}

// Replier generates a dialogue reply; see dialogue.Coach.
type Replier interface {
	Reply(ctx context.Context, text string) (string, error)
}

// State is the session's position in the utterance cycle.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateClosed
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StateFinalizing:
		return "FINALIZING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Deps are the collaborators of a [Session].
type Deps struct {
	// Verifier scores frames. The session owns it and closes it exactly once.
	Verifier verify.SessionHandle

	// FrameLength is the number of samples the verifier expects per frame.
	FrameLength int

	// VAD classifies conversation frames. Defaults to the energy engine.
	VAD vad.Engine

	Transcriber Transcriber
	Dialogue    Replier

	// Coach decides when to coach in conversation sessions. Defaults to a
	// trigger with the stock markers, threshold and cooldown.
	Coach *coach.Trigger

	// Pool runs verification, transcription and dialogue calls.
	Pool *workpool.Pool

	// Metrics is optional.
	Metrics *observe.Metrics
}

// Session is the state machine of one socket connection.
type Session struct {
	id          string
	variant     Variant
	cfg         Config
	verifier    verify.SessionHandle
	frameLen    int
	policy      Policy
	gates       Gates
	transcriber Transcriber
	dialogue    Replier
	coach       *coach.Trigger
	pool        *workpool.Pool
	metrics     *observe.Metrics
	log         *slog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// NewSession builds a session. It takes ownership of deps.Verifier: the
// verifier is closed when the session ends, and also when NewSession fails.
func NewSession(id string, v Variant, cfg Config, deps Deps) (*Session, error) {
	s, err := newSession(id, v, cfg, deps)
	if err != nil {
		if deps.Verifier != nil {
			_ = deps.Verifier.Close()
		}
		return nil, err
	}
	return s, nil
}

func newSession(id string, v Variant, cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Verifier == nil:
		return nil, errors.New("pipeline: verifier must not be nil")
	case deps.FrameLength <= 0:
		return nil, fmt.Errorf("pipeline: frame length must be positive, got %d", deps.FrameLength)
	case deps.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber must not be nil")
	case deps.Dialogue == nil:
		return nil, errors.New("pipeline: dialogue must not be nil")
	case deps.Pool == nil:
		return nil, errors.New("pipeline: worker pool must not be nil")
	}

	s := &Session{
		id:          id,
		variant:     v,
		cfg:         cfg,
		verifier:    deps.Verifier,
		frameLen:    deps.FrameLength,
		gates:       gatesFor(v, cfg),
		transcriber: deps.Transcriber,
		dialogue:    deps.Dialogue,
		coach:       deps.Coach,
		pool:        deps.Pool,
		metrics:     deps.Metrics,
		log:         slog.With("session_id", id, "variant", v.String()),
	}

	switch v {
	case VariantTalk:
		s.policy = NewVerificationPolicy(cfg.GraceFrames)
	case VariantConversation:
		engine := deps.VAD
		if engine == nil {
			engine = energy.New()
		}
		sess, err := engine.NewSession(vad.Config{SampleRate: cfg.SampleRate, SpeechThreshold: cfg.SpeechRMSThreshold})
		if err != nil {
			return nil, fmt.Errorf("pipeline: open vad session: %w", err)
		}
		s.policy = NewEnergyPolicy(sess, cfg.MaxSilenceFrames, cfg.VerifyThreshold)
		if s.coach == nil {
			s.coach = coach.NewTrigger(coach.Config{})
		}
	default:
		return nil, fmt.Errorf("pipeline: unknown variant %d", v)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	if old := State(s.state.Swap(int32(st))); old != st {
		s.log.Debug("session state", "from", old.String(), "to", st.String())
	}
}

// Run drives the session until the source ends, ctx is cancelled or a
// transport or verifier fault occurs. It always closes the session.
func (s *Session) Run(ctx context.Context, src Source, sink Sink) error {
	defer s.Close()

	if s.metrics != nil {
		attr := observe.Attr("variant", s.variant.String())
		s.metrics.ActiveSessions.Add(ctx, 1, metric.WithAttributes(attr))
		defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1, metric.WithAttributes(attr))
	}
	s.log.Info("session accepted")

	out := &lockedSink{sink: sink}
	queue := make(chan Scored, s.cfg.QueueFrames)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return s.ingest(gctx, src, out, queue)
	})
	g.Go(func() error {
		return s.segment(gctx, out, queue)
	})

	err := g.Wait()
	if errors.Is(err, ErrDisconnected) {
		err = nil
	}
	if err != nil {
		s.log.Warn("session closed with error", "err", err)
	} else {
		s.log.Info("session closed")
	}
	return err
}

// Close releases the verifier and the segmentation policy. It is safe to call
// more than once; only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.closeErr = errors.Join(s.verifier.Close(), s.policy.Close())
	})
	return s.closeErr
}

// ingest reads messages, assembles frames, scores them and emits status
// events. It never waits for utterance processing except through the bounded
// queue.
func (s *Session) ingest(ctx context.Context, src Source, out Sink, queue chan<- Scored) error {
	asm := audio.NewAssembler(s.frameLen * 4)
	for {
		in, err := src.Receive(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if !in.Binary {
			if err := s.handleControl(in.Data); err != nil {
				return err
			}
			continue
		}

		pcm, err := audio.Float32LEToInt16(in.Data)
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		asm.Push(pcm)

		for _, frame := range asm.Drain(s.frameLen) {
			scored, err := s.score(ctx, frame)
			if err != nil {
				return err
			}
			if err := out.Send(ctx, s.statusMessage(scored)); err != nil {
				return fmt.Errorf("pipeline: send status: %w", err)
			}
			select {
			case queue <- scored:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Session) handleControl(data []byte) error {
	c, err := protocol.ParseControl(data)
	switch {
	case errors.Is(err, protocol.ErrUnknownMessage):
		s.log.Debug("ignoring control message", "err", err)
		return nil
	case err != nil:
		return fmt.Errorf("pipeline: %w", err)
	}
	s.log.Debug("control message", "type", c.Type)
	return nil
}

func (s *Session) score(ctx context.Context, frame audio.Frame) (Scored, error) {
	score, err := workpool.Run(ctx, s.pool, func(ctx context.Context) (float64, error) {
		start := time.Now()
		defer func() {
			if s.metrics != nil {
				observe.ObserveDuration(ctx, s.metrics.VerifyDuration, start)
			}
		}()
		return s.verifier.Score(ctx, frame)
	})
	if err != nil {
		return Scored{}, fmt.Errorf("pipeline: verify frame: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordFrame(ctx, s.variant.String())
	}
	return Scored{Frame: frame, Score: score, Verified: verify.Verified(score, s.cfg.VerifyThreshold)}, nil
}

func (s *Session) statusMessage(sc Scored) protocol.Message {
	if s.variant == VariantConversation {
		return protocol.NewSpeakerStatus(sc.Verified, sc.Score)
	}
	return protocol.NewVerificationStatus(sc.Verified, sc.Score)
}

// segment runs the policy over queued frames and processes each finalised
// utterance before taking the next frame.
func (s *Session) segment(ctx context.Context, out Sink, queue <-chan Scored) error {
	for sc := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		u, done, err := s.policy.Push(sc)
		if err != nil {
			return err
		}
		if done {
			s.setState(StateFinalizing)
			if err := s.finalize(ctx, out, u); err != nil {
				return err
			}
		}
		if s.policy.Recording() {
			s.setState(StateRecording)
		} else {
			s.setState(StateIdle)
		}
	}
	return nil
}

// lockedSink serialises sends from the ingestion and segmentation goroutines.
type lockedSink struct {
	mu   sync.Mutex
	sink Sink
}

func (l *lockedSink) Send(ctx context.Context, msg protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Send(ctx, msg)
}
