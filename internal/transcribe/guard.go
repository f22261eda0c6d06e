package transcribe

import (
	"bytes"
	"compress/zlib"
	"strings"

	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
)

// IsRepetition reports whether text is a degenerate loop: at least four words
// drawn from at most two distinct ones ("you you you you", "thank you thank
// you"). Comparison is case-insensitive.
func IsRepetition(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 4 {
		return false
	}
	distinct := make(map[string]struct{}, 3)
	for _, w := range words {
		distinct[w] = struct{}{}
		if len(distinct) > 2 {
			return false
		}
	}
	return true
}

// CompressionRatio is len(text) divided by its zlib-compressed length.
// Repetitive decoder output compresses well and scores high.
func CompressionRatio(text string) float64 {
	if text == "" {
		return 0
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write([]byte(text))
	_ = zw.Close()
	return float64(len(text)) / float64(buf.Len())
}

// keepSegment applies the per-segment gates. A segment is silence when its
// no-speech probability exceeds the threshold while its log-probability is
// below the log-prob threshold. With strict set it is also a decoding
// failure when its text compresses better than the compression ratio
// threshold; otherwise that threshold only steers the provider's decoder.
// Statistics a provider does not report are zero and never trip a gate.
func keepSegment(seg stt.Segment, o stt.DecodeOptions, strict bool) bool {
	if strings.TrimSpace(seg.Text) == "" {
		return false
	}
	if o.NoSpeechThreshold > 0 && seg.NoSpeechProb > o.NoSpeechThreshold &&
		seg.AvgLogProb < o.LogProbThreshold {
		return false
	}
	if strict && o.CompressionRatioThreshold > 0 && CompressionRatio(seg.Text) > o.CompressionRatioThreshold {
		return false
	}
	return true
}
