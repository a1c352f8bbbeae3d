// Package pcm converts between normalised floating-point audio samples and
// the base64-wrapped little-endian PCM16 encoding used on the live transport.
//
// Encode and Decode are exact inverses at the wrapping layer. The sample
// scaling itself is lossy in two documented ways: out-of-range input samples
// are clamped to [-1, 1] before scaling, and the float32→int16 quantisation
// loses up to 1/32768 per sample. Round trips of in-range samples reconstruct
// the input within that quantisation error.
package pcm

import (
	"encoding/base64"
	"fmt"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Chunk is one encoded media payload ready for transport: PCM16 little-endian
// bytes in base64 text form, plus the declared sample rate and channel count.
type Chunk struct {
	// MIMEType declares the payload format, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data is the base64-encoded PCM16LE payload.
	Data string

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Encode converts normalised float samples into a transport [Chunk]. Each
// sample is clamped to [-1, 1], scaled to the signed 16-bit range, packed
// little-endian, and base64-wrapped.
func Encode(samples []float32, sampleRate, channels int) Chunk {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(v >> 8)
	}
	return Chunk{
		MIMEType:   fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		Data:       base64.StdEncoding.EncodeToString(raw),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Decode unwraps the base64 layer of a transport payload and returns the raw
// PCM16LE bytes. It is the exact inverse of the wrapping step only — the PCM
// scaling is undone by [DecodeAudioData].
func Decode(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode base64: %w", err)
	}
	return raw, nil
}

// DecodeAudioData interprets raw little-endian PCM16 bytes as normalised
// float samples (divide by 32768) and constructs a playable buffer at the
// declared rate and channel count. A trailing odd byte is dropped.
func DecodeAudioData(raw []byte, sampleRate, channels int) *audio.Buffer {
	n := len(raw) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float32(v) / 32768
	}
	return &audio.Buffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}
