package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencer(t *testing.T) {
	s := Sequencer{}

	require.Equal(t, InOrder, s.Next(65534))
	require.Equal(t, InOrder, s.Next(65535))
	require.Equal(t, InOrder, s.Next(0))
	require.Equal(t, Gap, s.Next(3))
	require.Equal(t, uint64(2), s.Lost())
	require.Equal(t, InOrder, s.Next(4))

	s.Reset()
	require.Equal(t, InOrder, s.Next(100))
	require.Equal(t, uint64(0), s.Lost())
}

func TestSequencerLate(t *testing.T) {
	s := Sequencer{}

	require.Equal(t, InOrder, s.Next(10))
	require.Equal(t, InOrder, s.Next(11))

	// Duplicate
	require.Equal(t, Late, s.Next(11))

	// Reordered
	require.Equal(t, Gap, s.Next(13))
	require.Equal(t, Late, s.Next(12))

	// The sequencer didn't move back.
	require.Equal(t, InOrder, s.Next(14))

	require.Equal(t, uint64(1), s.Lost())
	require.Equal(t, uint64(2), s.Late())

	// Late across the wrap.
	s.Reset()
	require.Equal(t, InOrder, s.Next(2))
	require.Equal(t, Late, s.Next(65530))
	require.Equal(t, InOrder, s.Next(3))
}
