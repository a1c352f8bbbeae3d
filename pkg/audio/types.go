package audio

// Buffer holds decoded audio ready for playback: normalised float32 samples
// in [-1, 1] at a declared sample rate and channel count. Buffers are the
// unit of playback scheduling — one Buffer per decoded inbound media chunk.
type Buffer struct {
	// Samples are interleaved normalised samples.
	Samples []float32

	// SampleRate in Hz (e.g., 24000 for model speech output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playback duration of the buffer in seconds.
// A buffer with a non-positive rate or channel count has zero duration.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return float64(frames) / float64(b.SampleRate)
}
