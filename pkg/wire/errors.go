// ABOUTME: Typed decode errors for the binary wire codec
// ABOUTME: Every recoverable framing failure gets its own sentinel so callers can log and drop
package wire

import "errors"

var (
	// ErrUnknownType names a binary discriminator byte the codec doesn't
	// recognize. No function in this package returns it: DiscriminatorOf
	// hands back any leading byte, reserved ones included, and callers
	// drop frames whose discriminator they do not handle.
	ErrUnknownType = errors.New("wire: unknown binary message type")

	// ErrTruncatedHeader is returned when a binary frame is shorter
	// than its fixed header.
	ErrTruncatedHeader = errors.New("wire: truncated binary header")

	// ErrDataSizeMismatch is returned when a PlayAudioChunk payload
	// length doesn't equal sample_count * channels * 2.
	ErrDataSizeMismatch = errors.New("wire: audio payload size mismatch")

	// ErrBadJSON is returned when a text frame isn't a valid Message envelope.
	ErrBadJSON = errors.New("wire: malformed JSON message")

	// ErrUnknownFormat is returned for a MediaArt format byte other
	// than 0 (JPEG) or 1 (PNG).
	ErrUnknownFormat = errors.New("wire: unknown art format")
)
