// Package bits provides a buffer of single bits. Values are appended MSB-first and
// consumed from the front.
package bits

import (
	"errors"
)

// ErrInvalidHex is returned by AddHex if the input contains a character that is
// not a hexadecimal digit.
var ErrInvalidHex = errors.New("invalid hex character")

// Buffer is an append-only, consume-from-front buffer of bits. The zero value is
// an empty buffer ready to use.
type Buffer struct {
	data []byte
	size int // number of valid bits in data, including consumed ones
	pos  int // number of consumed bits
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferFromBytes returns a buffer that holds all bits of b. The bytes are copied.
func NewBufferFromBytes(b []byte) *Buffer {
	data := make([]byte, len(b))
	copy(data, b)

	return &Buffer{
		data: data,
		size: len(data) * 8,
	}
}

// Len returns the number of bits that are left to read.
func (b *Buffer) Len() int {
	return b.size - b.pos
}

// Add appends the lower n bits of value, most significant bit first. Nothing is
// added for n <= 0. At most 64 bits are added.
func (b *Buffer) Add(value uint64, n int) {
	if n <= 0 {
		return
	}

	if n > 64 {
		n = 64
	}

	for i := n - 1; i >= 0; i-- {
		b.addBit(byte(value>>uint(i)) & 1)
	}
}

// AddBool appends a single bit.
func (b *Buffer) AddBool(v bool) {
	if v {
		b.addBit(1)
	} else {
		b.addBit(0)
	}
}

// AddHex appends 4 bits for each hex digit in s. The digits are case-insensitive.
// If s contains any other character, ErrInvalidHex is returned and nothing is added.
func (b *Buffer) AddHex(s string) error {
	for i := 0; i < len(s); i++ {
		if _, ok := hexValue(s[i]); !ok {
			return ErrInvalidHex
		}
	}

	for i := 0; i < len(s); i++ {
		v, _ := hexValue(s[i])
		b.Add(uint64(v), 4)
	}

	return nil
}

// Read consumes n bits from the front and returns them as an unsigned integer,
// most significant bit first. If fewer than n bits are buffered, 0 is returned
// and nothing is consumed.
func (b *Buffer) Read(n int) uint64 {
	if n <= 0 || n > 64 || n > b.Len() {
		return 0
	}

	var v uint64

	for i := 0; i < n; i++ {
		v = v<<1 | uint64(b.bitAt(b.pos+i))
	}

	b.pos += n
	b.compact()

	return v
}

// ReadBool consumes a single bit. It returns false if the buffer is empty.
func (b *Buffer) ReadBool() bool {
	return b.Read(1) == 1
}

// Skip consumes up to n bits.
func (b *Buffer) Skip(n int) {
	if n <= 0 {
		return
	}

	if n > b.Len() {
		n = b.Len()
	}

	b.pos += n
	b.compact()
}

// ReadUE consumes an unsigned Exp-Golomb code. It returns 0 if the buffer runs
// out of bits.
func (b *Buffer) ReadUE() uint64 {
	zeros := 0

	for b.Len() > 0 && !b.ReadBool() {
		zeros++
		if zeros > 32 {
			return 0
		}
	}

	if zeros == 0 {
		return 0
	}

	return (1 << uint(zeros)) - 1 + b.Read(zeros)
}

// ReadSE consumes a signed Exp-Golomb code.
func (b *Buffer) ReadSE() int64 {
	k := b.ReadUE()

	if k%2 == 1 {
		return int64((k + 1) / 2)
	}

	return -int64(k / 2)
}

// Bytes packs the remaining bits MSB-first into ceil(Len()/8) bytes. The last
// byte is padded with zero bits on the right. Nothing is consumed.
func (b *Buffer) Bytes() []byte {
	n := b.Len()
	out := make([]byte, (n+7)/8)

	if b.pos%8 == 0 {
		copy(out, b.data[b.pos/8:])
		return out
	}

	for i := 0; i < n; i++ {
		if b.bitAt(b.pos+i) != 0 {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}

	return out
}

func (b *Buffer) addBit(bit byte) {
	if b.size%8 == 0 {
		b.data = append(b.data, 0)
	}

	if bit != 0 {
		b.data[b.size/8] |= 0x80 >> uint(b.size%8)
	}

	b.size++
}

func (b *Buffer) bitAt(i int) byte {
	return (b.data[i/8] >> uint(7-i%8)) & 1
}

// compact drops fully consumed bytes from the front.
func (b *Buffer) compact() {
	drop := b.pos / 8
	if drop == 0 {
		return
	}

	b.data = b.data[drop:]
	b.pos -= drop * 8
	b.size -= drop * 8
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
