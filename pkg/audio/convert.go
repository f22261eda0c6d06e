package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMisalignedPayload is returned when a binary payload is not a whole number
// of samples.
var ErrMisalignedPayload = errors.New("audio: payload is not sample aligned")

// Float32LEToInt16 converts little-endian IEEE-754 float32 samples to int16 by
// scaling with 32767 and truncating toward zero. Values outside [-1, 1] are
// clamped so that loud clients cannot wrap around.
func Float32LEToInt16(data []byte) ([]int16, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes for float32", ErrMisalignedPayload, len(data))
	}
	out := make([]int16, len(data)/4)
	for i := range out {
		f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		v := float64(f) * 32767
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out, nil
}

// Int16ToFloat32LE is the inverse of [Float32LEToInt16] up to quantisation.
// It is mainly used by clients and tests to produce socket payloads.
func Int16ToFloat32LE(samples []int16) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(s)/32767))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 decodes little-endian 16-bit PCM. A trailing odd byte is an
// error.
func BytesToInt16(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes for int16", ErrMisalignedPayload, len(pcm))
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}

// RMS returns the root-mean-square energy of samples normalised to [0, 1]
// (full scale is 32768). Empty input has zero energy.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// FirstChannel extracts channel 0 from interleaved PCM with the given channel
// count. Mono input is returned unchanged.
func FirstChannel(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]int16, len(interleaved)/channels)
	for i := range out {
		out[i] = interleaved[i*channels]
	}
	return out
}

// Concat joins frames into one contiguous sample slice.
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
