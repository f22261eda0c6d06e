package whisper

// int16ToFloat32 converts 16-bit PCM to float32 samples in [-1.0, 1.0) as
// expected by whisper.cpp.
func int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
