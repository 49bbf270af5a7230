package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeParseBinaryChunkRoundTrip(t *testing.T) {
	header := ChunkHeader{
		ID:       "m1",
		UploadID: "u1",
		FilePath: "game.exe",
		Offset:   0,
		Checksum: "abc",
	}
	payload := []byte("binary data here")

	encoded, err := EncodeBinary(header, payload)
	if err != nil {
		t.Fatalf("EncodeBinary() error = %v", err)
	}

	msg, err := ParseBinary(encoded)
	if err != nil {
		t.Fatalf("ParseBinary() error = %v", err)
	}
	if msg.Chunk == nil {
		t.Fatalf("ParseBinary() expected chunk header, got artwork=%v", msg.Artwork)
	}
	if msg.Chunk.ID != header.ID || msg.Chunk.UploadID != header.UploadID ||
		msg.Chunk.FilePath != header.FilePath || msg.Chunk.Offset != header.Offset ||
		msg.Chunk.Checksum != header.Checksum {
		t.Errorf("ParseBinary() header = %+v, want %+v", msg.Chunk, header)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("ParseBinary() payload = %q, want %q", msg.Payload, payload)
	}
}

func TestEncodeParseBinaryArtworkRoundTrip(t *testing.T) {
	header := ArtworkHeader{
		Type:        BinaryHeaderArtwork,
		ID:          "m2",
		AppID:       0,
		ArtworkType: "grid",
		ContentType: "image/png",
	}
	payload := []byte{0x89, 0x50, 0x4e, 0x47}

	encoded, err := EncodeBinary(header, payload)
	if err != nil {
		t.Fatalf("EncodeBinary() error = %v", err)
	}

	msg, err := ParseBinary(encoded)
	if err != nil {
		t.Fatalf("ParseBinary() error = %v", err)
	}
	if msg.Artwork == nil {
		t.Fatalf("ParseBinary() expected artwork header, got chunk=%v", msg.Chunk)
	}
	if msg.Artwork.AppID != 0 || msg.Artwork.ArtworkType != "grid" {
		t.Errorf("ParseBinary() header = %+v, want %+v", msg.Artwork, header)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("ParseBinary() payload = %v, want %v", msg.Payload, payload)
	}
}

func TestParseBinaryTooShort(t *testing.T) {
	_, err := ParseBinary([]byte{0x00, 0x00})
	if err != ErrBinaryTooShort {
		t.Errorf("ParseBinary() error = %v, want ErrBinaryTooShort", err)
	}
}

func TestParseBinaryHeaderTruncated(t *testing.T) {
	// header length says 100 bytes follow, but none do.
	buf := []byte{0x00, 0x00, 0x00, 0x64}
	_, err := ParseBinary(buf)
	var truncErr *HeaderTruncatedError
	if err == nil {
		t.Fatal("ParseBinary() expected error, got nil")
	}
	if !bytesAs(err, &truncErr) {
		t.Errorf("ParseBinary() error = %v, want *HeaderTruncatedError", err)
	}
}

func bytesAs(err error, target **HeaderTruncatedError) bool {
	if e, ok := err.(*HeaderTruncatedError); ok {
		*target = e
		return true
	}
	return false
}

func TestParseBinaryInvalidJSON(t *testing.T) {
	bad := []byte("not json")
	buf := make([]byte, 4+len(bad))
	buf[3] = byte(len(bad))
	copy(buf[4:], bad)

	_, err := ParseBinary(buf)
	if err == nil {
		t.Fatal("ParseBinary() expected error, got nil")
	}
	if _, ok := err.(*InvalidJSONError); !ok {
		t.Errorf("ParseBinary() error type = %T, want *InvalidJSONError", err)
	}
}
