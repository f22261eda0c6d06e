package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	wavHeaderSize  = 44
)

// ErrInvalidWAV is returned by [DecodeWAV] for input that is not a RIFF/WAVE
// stream it understands.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// WAV is a decoded WAV file. Samples are interleaved when Channels > 1.
type WAV struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Mono returns channel 0 of the file.
func (w WAV) Mono() []int16 { return FirstChannel(w.Samples, w.Channels) }

// EncodeWAV wraps 16-bit PCM samples in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	dataSize := len(samples) * 2
	blockAlign := channels * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// DecodeWAV reads a RIFF/WAVE stream containing 16-bit integer or 32-bit
// float PCM and returns its samples as int16. Unknown chunks (LIST, fact, ...)
// are skipped.
func DecodeWAV(r io.Reader) (WAV, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAV{}, fmt.Errorf("%w: read header: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAV{}, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrInvalidWAV)
	}

	var (
		w        WAV
		format   uint16
		bits     uint16
		haveFmt  bool
		chunkHdr [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunkHdr[:]); err != nil {
			return WAV{}, fmt.Errorf("%w: no data chunk: %v", ErrInvalidWAV, err)
		}
		id := string(chunkHdr[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return WAV{}, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAV{}, fmt.Errorf("%w: read fmt: %v", ErrInvalidWAV, err)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			w.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = binary.LittleEndian.Uint16(body[14:16])
			if format == 0xFFFE && size >= 26 {
				// WAVE_FORMAT_EXTENSIBLE: the real format is the first two
				// bytes of the sub-format GUID.
				format = binary.LittleEndian.Uint16(body[24:26])
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAV{}, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			body, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return WAV{}, fmt.Errorf("%w: read data: %v", ErrInvalidWAV, err)
			}
			samples, err := decodeSamples(body, format, bits)
			if err != nil {
				return WAV{}, err
			}
			if w.Channels <= 0 {
				w.Channels = 1
			}
			w.Samples = samples
			return w, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WAV{}, fmt.Errorf("%w: skip %q chunk: %v", ErrInvalidWAV, id, err)
			}
			continue
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return WAV{}, fmt.Errorf("%w: chunk padding: %v", ErrInvalidWAV, err)
			}
		}
	}
}

func decodeSamples(body []byte, format, bits uint16) ([]int16, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return BytesToInt16(body[:len(body)-len(body)%2])
	case format == wavFormatFloat && bits == 32:
		n := len(body) / 4
		out := make([]int16, n)
		for i := range n {
			f := float64(math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:])))
			out[i] = int16(max(-1, min(1, f)) * 32767)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding format=%d bits=%d", ErrInvalidWAV, format, bits)
	}
}
