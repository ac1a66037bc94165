package rtsp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// ChunkMarker is the first byte of an interleaved data chunk.
	ChunkMarker = 0x24

	// MaxChunkPayload is the largest payload a chunk can carry.
	MaxChunkPayload = 0xFFFF
)

var ErrChunkTooLarge = errors.New("chunk payload too large")

// Chunk is a piece of binary data interleaved with the control messages.
type Chunk struct {
	Channel uint8
	Payload []byte

	origin ConnID
}

// Origin returns the connection the chunk has been received on.
func (c *Chunk) Origin() ConnID {
	return c.origin
}

// chunkHeader returns the 4 byte wire header for a payload of the given length.
func chunkHeader(channel uint8, length int) ([4]byte, error) {
	var h [4]byte

	if length > MaxChunkPayload {
		return h, fmt.Errorf("%d bytes: %w", length, ErrChunkTooLarge)
	}

	h[0] = ChunkMarker
	h[1] = channel
	binary.BigEndian.PutUint16(h[2:], uint16(length))

	return h, nil
}

// ReadChunk reads a chunk from r. The marker byte is expected to be the next byte.
func ReadChunk(r io.Reader) (*Chunk, error) {
	var h [4]byte

	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}

	if h[0] != ChunkMarker {
		return nil, fmt.Errorf("unexpected byte 0x%02x: %w", h[0], ErrMalformed)
	}

	c := &Chunk{
		Channel: h[1],
		Payload: make([]byte, binary.BigEndian.Uint16(h[2:])),
	}

	if _, err := io.ReadFull(r, c.Payload); err != nil {
		return nil, eof(err)
	}

	return c, nil
}

// WriteChunk writes a chunk to w with a single call to Write.
func WriteChunk(w io.Writer, channel uint8, payload []byte) error {
	h, err := chunkHeader(channel, len(payload))
	if err != nil {
		return err
	}

	data := make([]byte, 0, len(h)+len(payload))
	data = append(data, h[:]...)
	data = append(data, payload...)

	_, err = w.Write(data)

	return err
}
