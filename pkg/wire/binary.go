// ABOUTME: Binary frame codec for audio chunks and media art
// ABOUTME: Pure, allocation-only encode/decode with no I/O; round-trip exact for valid frames
package wire

import (
	"encoding/binary"
	"encoding/json"
)

// Binary discriminator bytes.
const (
	BinaryTypePlayAudioChunk byte = 0x01
	BinaryTypeMediaArt       byte = 0x02
)

// Art format tags.
const (
	ArtFormatJPEG byte = 0
	ArtFormatPNG  byte = 1
)

const audioChunkHeaderSize = 1 + 8 + 4 // type + timestamp_us + sample_count

// PlayAudioChunk is a timestamped run of interleaved int16 PCM samples.
type PlayAudioChunk struct {
	TimestampUs  int64
	SampleCount  uint32
	Channels     int // not on the wire; needed to validate payload length
	Samples      []byte
}

// EncodePlayAudioChunk builds the wire frame:
// [u8 type=1][i64 timestamp_us BE][u32 sample_count BE][int16 LE samples].
// samples must already be interleaved int16 LE bytes of length
// sampleCount*channels*2.
func EncodePlayAudioChunk(timestampUs int64, sampleCount uint32, samples []byte) []byte {
	out := make([]byte, audioChunkHeaderSize+len(samples))
	out[0] = BinaryTypePlayAudioChunk
	binary.BigEndian.PutUint64(out[1:9], uint64(timestampUs))
	binary.BigEndian.PutUint32(out[9:13], sampleCount)
	copy(out[13:], samples)
	return out
}

// DecodePlayAudioChunk parses a frame previously identified (by its
// leading discriminator byte) as a PlayAudioChunk. channels is the
// session's channel count, used only to validate the payload length
// against sample_count * channels * 2.
func DecodePlayAudioChunk(data []byte, channels int) (PlayAudioChunk, error) {
	if len(data) < audioChunkHeaderSize {
		return PlayAudioChunk{}, ErrTruncatedHeader
	}
	ts := int64(binary.BigEndian.Uint64(data[1:9]))
	count := binary.BigEndian.Uint32(data[9:13])
	payload := data[13:]
	if uint32(len(payload)) != count*uint32(channels)*2 {
		return PlayAudioChunk{}, ErrDataSizeMismatch
	}
	return PlayAudioChunk{
		TimestampUs: ts,
		SampleCount: count,
		Channels:    channels,
		Samples:     payload,
	}, nil
}

// MediaArt is an opaque image blob with a format tag.
type MediaArt struct {
	Format byte
	Data   []byte
}

// EncodeMediaArt builds the wire frame: [u8 type=2][u8 format][bytes].
func EncodeMediaArt(format byte, data []byte) []byte {
	out := make([]byte, 2+len(data))
	out[0] = BinaryTypeMediaArt
	out[1] = format
	copy(out[2:], data)
	return out
}

// DecodeMediaArt parses a frame identified as MediaArt.
func DecodeMediaArt(data []byte) (MediaArt, error) {
	if len(data) < 2 {
		return MediaArt{}, ErrTruncatedHeader
	}
	format := data[1]
	if format != ArtFormatJPEG && format != ArtFormatPNG {
		return MediaArt{}, ErrUnknownFormat
	}
	return MediaArt{Format: format, Data: data[2:]}, nil
}

// DiscriminatorOf returns the leading byte of a binary frame, or
// ErrTruncatedHeader if the frame is empty.
func DiscriminatorOf(data []byte) (byte, error) {
	if len(data) < 1 {
		return 0, ErrTruncatedHeader
	}
	return data[0], nil
}

// EncodeMessage marshals a text Message envelope to JSON.
func EncodeMessage(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// DecodeMessage unmarshals a JSON text frame into a Message envelope;
// the payload is left as raw interface{} (typically map[string]any)
// for the caller to re-marshal/unmarshal into the concrete payload type.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, ErrBadJSON
	}
	return msg, nil
}

// DecodePayload re-marshals a decoded Message's generic payload into a
// concrete struct, the pattern used throughout the server and receiver
// to avoid a type switch per field.
func DecodePayload(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return ErrBadJSON
	}
	if err := json.Unmarshal(data, out); err != nil {
		return ErrBadJSON
	}
	return nil
}
