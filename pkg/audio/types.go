// Package audio holds the PCM primitives shared by the streaming pipeline:
// sample conversion, energy measurement, WAV encoding and the frame assembler
// that slices an incoming byte stream into verifier-sized frames.
package audio

import "time"

// SampleRate is the only sample rate the pipeline accepts (Hz, mono).
const SampleRate = 16000

// Frame is a fixed-length slice of 16-bit mono PCM samples. Frames handed out
// by an [Assembler] own their backing array and are never mutated afterwards.
type Frame []int16

// Duration returns the playback length of the frame at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	return SamplesDuration(len(f), sampleRate)
}

// SamplesDuration converts a sample count to a duration at sampleRate.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// Seconds converts a sample count to fractional seconds at sampleRate.
func Seconds(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate)
}
