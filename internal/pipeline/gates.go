package pipeline

import (
	"github.com/MrWong99/talkbuddy/internal/observe"
	"github.com/MrWong99/talkbuddy/pkg/audio"
)

// Gates decide whether a finalised utterance is worth transcribing.
type Gates struct {
	// MinRegisteredSec applies to utterances of the enrolled speaker.
	MinRegisteredSec float64

	// MinGuestSec applies to everyone else.
	MinGuestSec float64

	// GuestRMSFloor rejects guest utterances whose overall RMS is below it.
	// Zero disables the check.
	GuestRMSFloor float64
}

// Evaluate returns observe.OutcomeAccepted, observe.OutcomeRejectedShort or
// observe.OutcomeRejectedNoise. An utterance exactly at the minimum duration
// is accepted.
func (g Gates) Evaluate(u Utterance, sampleRate int) string {
	dur := u.Seconds(sampleRate)
	if u.Registered {
		if dur < g.MinRegisteredSec {
			return observe.OutcomeRejectedShort
		}
		return observe.OutcomeAccepted
	}
	if dur < g.MinGuestSec {
		return observe.OutcomeRejectedShort
	}
	if g.GuestRMSFloor > 0 && audio.RMS(u.PCM) < g.GuestRMSFloor {
		return observe.OutcomeRejectedNoise
	}
	return observe.OutcomeAccepted
}

// gatesFor returns the gates of a variant.
func gatesFor(v Variant, cfg Config) Gates {
	if v == VariantTalk {
		return Gates{MinRegisteredSec: cfg.MinUtteranceSec}
	}
	return Gates{
		MinRegisteredSec: cfg.MinRegisteredSec,
		MinGuestSec:      cfg.MinGuestSec,
		GuestRMSFloor:    cfg.GuestRMSFloor,
	}
}
