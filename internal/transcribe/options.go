package transcribe

import "github.com/MrWong99/talkbuddy/pkg/provider/stt"

// Options returns the decode options for a speaker's trust level. Untrusted
// audio is decoded more conservatively: a narrower search with a little
// temperature, no prompt carry-over, stricter segment gates and low-energy
// filtering before decoding.
func Options(trusted bool) stt.DecodeOptions {
	if trusted {
		return stt.DecodeOptions{
			BeamSize:                  5,
			BestOf:                    5,
			Temperature:               0,
			ConditionOnPrevious:       true,
			NoSpeechThreshold:         0.6,
			LogProbThreshold:          -1.0,
			CompressionRatioThreshold: 2.0,
		}
	}
	return stt.DecodeOptions{
		BeamSize:                  3,
		BestOf:                    3,
		Temperature:               0.2,
		NoSpeechThreshold:         0.85,
		LogProbThreshold:          -0.2,
		CompressionRatioThreshold: 2.0,
		FilterLowEnergy:           true,
	}
}
