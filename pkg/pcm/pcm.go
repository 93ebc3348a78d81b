// ABOUTME: 16-bit interleaved PCM <-> float sample conversion
// ABOUTME: Shared by the session engine (encode side) and the receiver (decode side)
package pcm

import (
	"encoding/binary"
	"math"
)

// ToInt16 converts a float sample in [-1, 1] to int16 per the wire
// encoding rule: round(sample * 32767), clamped before rounding.
func ToInt16(sample float64) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int16(math.Round(sample * 32767))
}

// ToFloat converts a decoded int16 sample back to the receiver's
// float range by dividing by 32768. ToInt16 scales by 32767, so a
// round trip can move a sample by at most one LSB.
func ToFloat(sample int16) float64 {
	return float64(sample) / 32768.0
}

// EncodeInterleaved writes channel-major float samples ([]plane,
// plane[i] is the i-th frame for that channel) as interleaved int16 LE
// bytes, matching the wire layout of a PlayAudioChunk payload.
func EncodeInterleaved(planes [][]float64) []byte {
	if len(planes) == 0 {
		return nil
	}
	channels := len(planes)
	frames := len(planes[0])
	out := make([]byte, frames*channels*2)
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			v := ToInt16(planes[ch][frame])
			binary.LittleEndian.PutUint16(out[(frame*channels+ch)*2:], uint16(v))
		}
	}
	return out
}

// DecodeInterleaved reads interleaved int16 LE samples into one float
// plane per channel, each of length sampleCount.
func DecodeInterleaved(data []byte, channels, sampleCount int) [][]float64 {
	planes := make([][]float64, channels)
	for ch := range planes {
		planes[ch] = make([]float64, sampleCount)
	}
	for frame := 0; frame < sampleCount; frame++ {
		for ch := 0; ch < channels; ch++ {
			off := (frame*channels + ch) * 2
			raw := int16(binary.LittleEndian.Uint16(data[off:]))
			planes[ch][frame] = ToFloat(raw)
		}
	}
	return planes
}

// EncodeInterleavedInt16 encodes already-quantized int16 interleaved
// samples (the server's common case: it holds true int16 PCM, not
// float) directly to wire bytes without a float round-trip.
func EncodeInterleavedInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
