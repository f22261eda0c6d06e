package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/internal/protocol"
	"github.com/MrWong99/talkbuddy/internal/workpool"
)

// finalize carries one utterance through gates, transcription and dialogue.
// Rejections and adapter faults drop the utterance and return nil; only
// transport faults and cancellation are returned.
func (s *Session) finalize(ctx context.Context, out Sink, u Utterance) (err error) {
	ctx, span := observe.StartUtteranceSpan(ctx, u.Frames, u.Registered)
	defer func() { observe.EndSpan(span, err) }()

	log := s.log.With(
		"frames", u.Frames,
		"seconds", u.Seconds(s.cfg.SampleRate),
		"max_confidence", u.MaxConfidence,
		"registered", u.Registered,
	)

	if outcome := s.gates.Evaluate(u, s.cfg.SampleRate); outcome != observe.OutcomeAccepted {
		log.Debug("utterance rejected", "outcome", outcome)
		s.recordOutcome(ctx, outcome)
		return nil
	}

	trusted := s.variant == VariantTalk || u.Registered
	text, err := workpool.Run(ctx, s.pool, func(ctx context.Context) (string, error) {
		return s.transcriber.Transcribe(ctx, u.PCM, trusted)
	})
	if err != nil {
		return s.dropUtterance(ctx, "transcribe", err)
	}
	if text == "" {
		log.Debug("utterance has no intelligible speech")
		s.recordOutcome(ctx, observe.OutcomeEmptyTranscript)
		return nil
	}
	log.Info("utterance transcribed", "text", text)

	switch s.variant {
	case VariantTalk:
		if err := out.Send(ctx, protocol.NewTranscription(text)); err != nil {
			return fmt.Errorf("pipeline: send transcription: %w", err)
		}
		reply, err := s.reply(ctx, text)
		if err != nil {
			return s.dropUtterance(ctx, "dialogue", err)
		}
		if err := out.Send(ctx, protocol.NewResponse(reply)); err != nil {
			return fmt.Errorf("pipeline: send response: %w", err)
		}

	case VariantConversation:
		if err := out.Send(ctx, protocol.NewSpeakerTranscription(u.Registered, u.MaxConfidence, text)); err != nil {
			return fmt.Errorf("pipeline: send transcription: %w", err)
		}
		if u.Registered {
			if prompt, ok := s.coach.Check(text); ok {
				log.Info("speaker is struggling, coaching")
				hint, err := s.reply(ctx, prompt)
				if err != nil {
					return s.dropUtterance(ctx, "coach", err)
				}
				if err := out.Send(ctx, protocol.NewCoach(hint)); err != nil {
					return fmt.Errorf("pipeline: send coach: %w", err)
				}
				s.coach.Fired()
				if s.metrics != nil {
					s.metrics.CoachFirings.Add(ctx, 1)
				}
			}
		}
	}

	s.recordOutcome(ctx, observe.OutcomeAccepted)
	return nil
}

func (s *Session) reply(ctx context.Context, text string) (string, error) {
	return workpool.Run(ctx, s.pool, func(ctx context.Context) (string, error) {
		return s.dialogue.Reply(ctx, text)
	})
}

// dropUtterance handles an adapter fault. If the session itself is ending
// the context error is returned so the loop stops.
func (s *Session) dropUtterance(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.log.Error("utterance dropped", "stage", stage, "err", err)
	s.recordOutcome(ctx, observe.OutcomeFailed)
	return nil
}

func (s *Session) recordOutcome(ctx context.Context, outcome string) {
	trace.SpanFromContext(ctx).SetAttributes(observe.AttrOutcome.String(outcome))
	if s.metrics != nil {
		s.metrics.RecordUtterance(ctx, s.variant.String(), outcome)
	}
}
