package bits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddBytes(t *testing.T) {
	b := NewBuffer()

	b.Add(0xA, 4)
	b.Add(0xB, 4)
	b.Add(0xC, 4)
	b.Add(0xD, 4)
	b.Add(0xE, 4)

	require.Equal(t, 20, b.Len())
	require.Equal(t, []byte{0xAB, 0xCD, 0xE0}, b.Bytes())
}

func TestAddMixedWidths(t *testing.T) {
	b := NewBuffer()

	b.Add(1, 1)
	b.Add(0, 2)
	b.Add(0x1F, 5)
	b.Add(0x1234, 16)
	b.Add(0x3, 2)
	b.Add(0x2A, 6)

	require.Equal(t, []byte{0x9F, 0x12, 0x34, 0xEA}, b.Bytes())
}

func TestAddInvalidWidth(t *testing.T) {
	b := NewBuffer()

	b.Add(0xFF, 0)
	b.Add(0xFF, -3)

	require.Equal(t, 0, b.Len())
	require.Equal(t, []byte{}, b.Bytes())
}

func TestAddHex(t *testing.T) {
	for _, input := range []string{"ABCDEF1234567890", "abcdef1234567890"} {
		b := NewBuffer()

		err := b.AddHex(input)
		require.NoError(t, err)

		require.Equal(t, uint64(0xAB), b.Read(8), input)
		require.Equal(t, uint64(0xC), b.Read(4), input)
		require.Equal(t, uint64(0xD), b.Read(4), input)
		require.Equal(t, uint64(0xEF), b.Read(8), input)
		require.Equal(t, uint64(0x1234), b.Read(16), input)
		require.Equal(t, uint64(1), b.Read(2), input)
		require.Equal(t, uint64(1), b.Read(2), input)
	}
}

func TestAddHexInvalid(t *testing.T) {
	b := NewBuffer()

	err := b.AddHex("12G4")
	require.ErrorIs(t, err, ErrInvalidHex)
	require.Equal(t, 0, b.Len())
}

func TestReadPastEnd(t *testing.T) {
	b := NewBuffer()
	b.Add(0x5, 3)

	require.Equal(t, uint64(0), b.Read(4))
	require.Equal(t, 3, b.Len())
	require.Equal(t, uint64(0x5), b.Read(3))
	require.Equal(t, uint64(0), b.Read(1))
}

func TestBytesAfterRead(t *testing.T) {
	b := NewBufferFromBytes([]byte{0xAB, 0xCD})

	require.Equal(t, uint64(0xA), b.Read(4))
	require.Equal(t, []byte{0xBC, 0xD0}, b.Bytes())

	require.Equal(t, uint64(0xB), b.Read(4))
	require.Equal(t, []byte{0xCD}, b.Bytes())
}

func TestExpGolomb(t *testing.T) {
	b := NewBuffer()

	// ue(v): 0 -> 1, 1 -> 010, 2 -> 011, 7 -> 0001000
	b.Add(0x1, 1)
	b.Add(0x2, 3)
	b.Add(0x3, 3)
	b.Add(0x8, 7)

	require.Equal(t, uint64(0), b.ReadUE())
	require.Equal(t, uint64(1), b.ReadUE())
	require.Equal(t, uint64(2), b.ReadUE())
	require.Equal(t, uint64(7), b.ReadUE())

	b.Add(0x2, 3)
	b.Add(0x3, 3)

	require.Equal(t, int64(1), b.ReadSE())
	require.Equal(t, int64(-1), b.ReadSE())
}
