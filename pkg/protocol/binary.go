package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Binary frames carry bulk data (upload chunks, artwork images) alongside a
// small JSON header. Wire shape: 4-byte big-endian header length, followed
// by that many bytes of JSON header, followed by the raw payload.

// BinaryHeaderType distinguishes the two binary frame shapes over the wire.
type BinaryHeaderType string

const (
	BinaryHeaderChunk   BinaryHeaderType = "chunk"
	BinaryHeaderArtwork BinaryHeaderType = "artwork_image"
)

// ChunkHeader accompanies an upload-chunk binary frame.
type ChunkHeader struct {
	Type     BinaryHeaderType `json:"type,omitempty"`
	ID       string           `json:"id"`
	UploadID string           `json:"uploadId"`
	FilePath string           `json:"filePath"`
	Offset   int64            `json:"offset"`
	Checksum string           `json:"checksum,omitempty"`
}

// ArtworkHeader accompanies a binary artwork-image frame.
type ArtworkHeader struct {
	Type        BinaryHeaderType `json:"type"`
	ID          string           `json:"id"`
	AppID       uint32           `json:"appId"`
	ArtworkType string           `json:"artworkType"`
	ContentType string           `json:"contentType,omitempty"`
}

// BinaryMessage is the parsed result of a binary frame: exactly one of
// Chunk or Artwork is populated, distinguished by the header's type field.
type BinaryMessage struct {
	Chunk   *ChunkHeader
	Artwork *ArtworkHeader
	Payload []byte
}

// Errors returned by the binary codec.
var (
	ErrBinaryTooShort        = errors.New("binary message too short")
	ErrBinaryHeaderTruncated = errors.New("binary message header truncated")
)

// HeaderTruncatedError reports the expected vs. actual header length.
type HeaderTruncatedError struct {
	Expected int
	Got      int
}

func (e *HeaderTruncatedError) Error() string {
	return fmt.Sprintf("binary header truncated: expected %d bytes, got %d", e.Expected, e.Got)
}

func (e *HeaderTruncatedError) Is(target error) bool {
	return target == ErrBinaryHeaderTruncated
}

// InvalidJSONError wraps a header JSON decode failure.
type InvalidJSONError struct {
	Reason error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("invalid binary header json: %v", e.Reason)
}

func (e *InvalidJSONError) Unwrap() error {
	return e.Reason
}

// EncodeBinary builds a framed binary message from a header (ChunkHeader or
// ArtworkHeader) and its payload bytes.
func EncodeBinary(header any, payload []byte) ([]byte, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 4+len(headerJSON)+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(headerJSON)))
	copy(buf[4:], headerJSON)
	copy(buf[4+len(headerJSON):], payload)
	return buf, nil
}

// ParseBinary decodes a framed binary message, routing to Chunk or Artwork
// in the result depending on the header's "type" field. A header with no
// type field (as emitted by older peers) is treated as a chunk header, the
// only shape that predates the type tag.
func ParseBinary(data []byte) (*BinaryMessage, error) {
	if len(data) < 4 {
		return nil, ErrBinaryTooShort
	}

	headerLen := int(binary.BigEndian.Uint32(data[0:4]))
	if len(data) < 4+headerLen {
		return nil, &HeaderTruncatedError{Expected: headerLen, Got: len(data) - 4}
	}

	headerBytes := data[4 : 4+headerLen]
	payload := data[4+headerLen:]

	var probe struct {
		Type BinaryHeaderType `json:"type"`
	}
	if err := json.Unmarshal(headerBytes, &probe); err != nil {
		return nil, &InvalidJSONError{Reason: err}
	}

	msg := &BinaryMessage{Payload: payload}
	if probe.Type == BinaryHeaderArtwork {
		var h ArtworkHeader
		if err := json.Unmarshal(headerBytes, &h); err != nil {
			return nil, &InvalidJSONError{Reason: err}
		}
		msg.Artwork = &h
		return msg, nil
	}

	var h ChunkHeader
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return nil, &InvalidJSONError{Reason: err}
	}
	msg.Chunk = &h
	return msg, nil
}
