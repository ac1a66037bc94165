package mem

import (
	"bytes"
	"io"
)

// Buffer is a growable byte buffer that can be recycled with a BufferPool.
type Buffer struct {
	data bytes.Buffer
}

// Len returns the length of the buffer.
func (b *Buffer) Len() int {
	return b.data.Len()
}

// Bytes returns the buffer, but keeps ownership.
func (b *Buffer) Bytes() []byte {
	return b.data.Bytes()
}

// Clone returns a copy of the buffered bytes.
func (b *Buffer) Clone() []byte {
	return bytes.Clone(b.data.Bytes())
}

// WriteTo writes the bytes to the writer with a single call to Write.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data.Bytes())
	return int64(n), err
}

// Reset empties the buffer and keeps it's capacity.
func (b *Buffer) Reset() {
	b.data.Reset()
}

// Write appends to the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.data.Write(p)
}

// WriteAt writes p at offset off. The buffer is extended with zeros if off is
// beyond its current length.
func (b *Buffer) WriteAt(p []byte, off int) {
	if off < 0 {
		return
	}

	end := off + len(p)

	if end > b.data.Len() {
		b.data.Write(make([]byte, end-b.data.Len()))
	}

	copy(b.data.Bytes()[off:end], p)
}

// WriteByte appends a byte to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	return b.data.WriteByte(c)
}

// WriteString appends a string to the buffer.
func (b *Buffer) WriteString(s string) (n int, err error) {
	return b.data.WriteString(s)
}

// String returns the data in the buffer a string.
func (b *Buffer) String() string {
	return b.data.String()
}
