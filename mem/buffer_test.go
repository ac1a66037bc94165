package mem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferWriteAt(t *testing.T) {
	buf := &Buffer{}

	buf.WriteAt([]byte("world"), 6)
	require.Equal(t, 11, buf.Len())

	buf.WriteAt([]byte("hello "), 0)
	require.Equal(t, "hello world", buf.String())

	buf.WriteAt([]byte("W"), 6)
	require.Equal(t, "hello World", buf.String())

	buf.WriteAt([]byte("x"), -1)
	require.Equal(t, "hello World", buf.String())
}

func TestBufferWriteTo(t *testing.T) {
	buf := &Buffer{}
	buf.WriteString("RTSP/1.0 200 OK\r\n")
	buf.WriteByte('\r')
	buf.WriteByte('\n')

	w := &bytes.Buffer{}
	n, err := buf.WriteTo(w)
	require.NoError(t, err)
	require.Equal(t, int64(19), n)
	require.Equal(t, "RTSP/1.0 200 OK\r\n\r\n", w.String())
}

func TestPoolReset(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get()
	buf.WriteString("foobar")
	clone := buf.Clone()
	pool.Put(buf)

	buf = pool.Get()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, []byte("foobar"), clone)
}
