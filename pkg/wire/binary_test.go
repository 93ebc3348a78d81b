// ABOUTME: Tests for the binary wire codec
// ABOUTME: Verifies round-trip exactness and the typed decode error taxonomy
package wire

import (
	"bytes"
	"testing"

	"github.com/roomstream/roomstream-go/pkg/pcm"
)

func TestPlayAudioChunkRoundTrip(t *testing.T) {
	samples := []int16{-32768, -1, 0, 1, 32767}
	data := pcm.EncodeInterleavedInt16(samples)

	frame := EncodePlayAudioChunk(1234567, uint32(len(samples)), data)
	if frame[0] != BinaryTypePlayAudioChunk {
		t.Fatalf("expected discriminator %d, got %d", BinaryTypePlayAudioChunk, frame[0])
	}

	chunk, err := DecodePlayAudioChunk(frame, 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if chunk.TimestampUs != 1234567 {
		t.Errorf("timestamp mismatch: got %d", chunk.TimestampUs)
	}
	if chunk.SampleCount != uint32(len(samples)) {
		t.Errorf("sample count mismatch: got %d", chunk.SampleCount)
	}
	if !bytes.Equal(chunk.Samples, data) {
		t.Errorf("sample bytes not bit-identical after round trip")
	}
}

func TestPlayAudioChunkHeaderSize(t *testing.T) {
	frame := EncodePlayAudioChunk(0, 0, nil)
	if len(frame) != audioChunkHeaderSize {
		t.Fatalf("expected header-only frame of %d bytes, got %d", audioChunkHeaderSize, len(frame))
	}
}

func TestPlayAudioChunkTruncatedHeader(t *testing.T) {
	_, err := DecodePlayAudioChunk([]byte{BinaryTypePlayAudioChunk, 0, 0}, 2)
	if err != ErrTruncatedHeader {
		t.Fatalf("expected ErrTruncatedHeader, got %v", err)
	}
}

func TestPlayAudioChunkDataSizeMismatch(t *testing.T) {
	frame := EncodePlayAudioChunk(0, 2, []byte{0, 0, 0, 0}) // claims 2 channels*2 frames but only gives 1ch data
	_, err := DecodePlayAudioChunk(frame, 2)
	if err != ErrDataSizeMismatch {
		t.Fatalf("expected ErrDataSizeMismatch, got %v", err)
	}
}

func TestMediaArtRoundTrip(t *testing.T) {
	img := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}
	frame := EncodeMediaArt(ArtFormatPNG, img)

	art, err := DecodeMediaArt(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if art.Format != ArtFormatPNG {
		t.Errorf("expected PNG format, got %d", art.Format)
	}
	if !bytes.Equal(art.Data, img) {
		t.Errorf("image bytes mismatch after round trip")
	}
}

func TestMediaArtUnknownFormat(t *testing.T) {
	frame := []byte{BinaryTypeMediaArt, 0x7f, 1, 2, 3}
	_, err := DecodeMediaArt(frame)
	if err != ErrUnknownFormat {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestDiscriminatorOfReservedType(t *testing.T) {
	d, err := DiscriminatorOf([]byte{0x7f, 1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d == BinaryTypePlayAudioChunk || d == BinaryTypeMediaArt {
		t.Fatalf("test fixture accidentally picked a known type")
	}
}

func TestDecodeMessageBadJSON(t *testing.T) {
	_, err := DecodeMessage([]byte("not json"))
	if err != ErrBadJSON {
		t.Fatalf("expected ErrBadJSON, got %v", err)
	}
}

func TestEncodeDecodeMessageEnvelope(t *testing.T) {
	hello := PlayerInfo{PlayerID: "p1", Name: "Kitchen", Role: "player@v1"}
	data, err := EncodeMessage(TypePlayerHello, hello)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Type != TypePlayerHello {
		t.Fatalf("expected type %s, got %s", TypePlayerHello, msg.Type)
	}

	var decoded PlayerInfo
	if err := DecodePayload(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if decoded.PlayerID != hello.PlayerID || decoded.Name != hello.Name {
		t.Errorf("payload mismatch: got %+v", decoded)
	}
}
