package rtsp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pipeTransport struct {
	conn   net.Conn
	closes atomic.Int32
	writes atomic.Int32
}

func newPipeTransport() (*pipeTransport, net.Conn) {
	a, b := net.Pipe()

	return &pipeTransport{conn: a}, b
}

func (p *pipeTransport) Connect(ctx context.Context) error   { return nil }
func (p *pipeTransport) Reconnect(ctx context.Context) error { return nil }
func (p *pipeTransport) IsConnected() bool                   { return true }
func (p *pipeTransport) Stream() io.ReadWriter               { return p }

func (p *pipeTransport) Close() error {
	p.closes.Add(1)
	return p.conn.Close()
}

func (p *pipeTransport) Read(b []byte) (int, error) {
	return p.conn.Read(b)
}

func (p *pipeTransport) Write(b []byte) (int, error) {
	p.writes.Add(1)
	return p.conn.Write(b)
}

type recorder struct {
	lock     sync.Mutex
	messages []Message
	chunks   []*Chunk
	closes   []error
}

func (r *recorder) OnMessage(c *Conn, m Message) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.messages = append(r.messages, m)
}

func (r *recorder) OnData(c *Conn, chunk *Chunk) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.chunks = append(r.chunks, chunk)
}

func (r *recorder) OnClose(c *Conn, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.closes = append(r.closes, err)
}

func startConn(t *testing.T) (*Conn, *pipeTransport, net.Conn, *recorder) {
	tr, peer := newPipeTransport()

	c := NewConn(tr, ConnConfig{})
	rec := &recorder{}
	c.Subscribe(rec)

	err := c.Start(context.Background())
	require.NoError(t, err)

	return c, tr, peer, rec
}

func waitDone(t *testing.T, c *Conn) {
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "connection didn't stop")
	}
}

func TestConnReceiveMessage(t *testing.T) {
	c, tr, peer, rec := startConn(t)

	_, err := peer.Write([]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: test\r\nRequire: implicit-play\r\n\r\n"))
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec.messages, 1)
	require.Len(t, rec.chunks, 0)
	require.Equal(t, []error{nil}, rec.closes)
	require.Equal(t, int32(1), tr.closes.Load())

	req, ok := rec.messages[0].(*Request)
	require.True(t, ok)
	require.Equal(t, Options, req.Method)
	require.Equal(t, "", req.URL)
	require.Equal(t, 3, req.Header().Len())
	require.Empty(t, req.Body())
	require.Equal(t, c.ID(), req.Origin())

	cseq, ok := req.CSeq()
	require.True(t, ok)
	require.Equal(t, 1, cseq)
}

func TestConnReceiveGarbageLine(t *testing.T) {
	c, _, peer, rec := startConn(t)

	_, err := peer.Write([]byte("HELLO\r\n\r\nOPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec.messages, 2)
	require.Equal(t, []error{nil}, rec.closes)

	req, ok := rec.messages[0].(*Request)
	require.True(t, ok)
	require.Equal(t, Unknown, req.Method)
	require.Equal(t, "HELLO", req.MethodName)

	req, ok = rec.messages[1].(*Request)
	require.True(t, ok)
	require.Equal(t, Options, req.Method)

	cseq, ok := req.CSeq()
	require.True(t, ok)
	require.Equal(t, 1, cseq)
}

func TestConnReceiveChunk(t *testing.T) {
	c, _, peer, rec := startConn(t)

	payload := make([]byte, 0x0234)
	for i := range payload {
		payload[i] = byte(i)
	}

	data := append([]byte{0x24, 11, 0x02, 0x34}, payload...)

	_, err := peer.Write(data)
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec.messages, 0)
	require.Len(t, rec.chunks, 1)
	require.Equal(t, uint8(11), rec.chunks[0].Channel)
	require.Equal(t, payload, rec.chunks[0].Payload)
	require.Equal(t, c.ID(), rec.chunks[0].Origin())
	require.Equal(t, uint64(len(data)), c.RxBytes())
}

func TestConnReceiveMixed(t *testing.T) {
	c, _, peer, rec := startConn(t)

	var data bytes.Buffer
	data.WriteString("ANNOUNCE rtsp://example.com/live RTSP/1.0\nCSeq: 2\nContent-Length: 4\n\nv=0\n")
	data.Write([]byte{0x24, 0, 0x00, 0x02, 0xAA, 0xBB})
	data.WriteString("RTSP/1.0 200 OK\r\nCSeq: 7\r\n\r\n")

	_, err := peer.Write(data.Bytes())
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec.messages, 2)
	require.Len(t, rec.chunks, 1)
	require.Equal(t, []byte("v=0\n"), rec.messages[0].Body())

	res, ok := rec.messages[1].(*Response)
	require.True(t, ok)
	require.Equal(t, 200, res.StatusCode)
	require.Nil(t, res.Request)
}

func TestConnPartialChunk(t *testing.T) {
	c, tr, peer, rec := startConn(t)

	_, err := peer.Write([]byte{0x24, 1, 0x00, 0x0A, 1, 2, 3})
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec.chunks, 0)
	require.Len(t, rec.closes, 1)
	require.ErrorIs(t, rec.closes[0], io.ErrUnexpectedEOF)
	require.Equal(t, int32(1), tr.closes.Load())
}

func TestConnPartialMessage(t *testing.T) {
	c, _, peer, rec := startConn(t)

	_, err := peer.Write([]byte("DESCRIBE rtsp://example.com/live RTSP/1.0\r\nCSeq: 3\r\nContent-Length: 10\r\n\r\nabc"))
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec.messages, 0)
	require.Len(t, rec.closes, 1)
	require.Error(t, rec.closes[0])
}

func TestConnStop(t *testing.T) {
	c, tr, peer, rec := startConn(t)
	defer peer.Close()

	c.Stop()

	require.Equal(t, []error{nil}, rec.closes)
	require.Equal(t, int32(1), tr.closes.Load())

	c.Stop()
	c.Close()

	require.Len(t, rec.closes, 1)
	require.Equal(t, int32(1), tr.closes.Load())

	err := c.SendMessage(NewRequest(Options, ""))
	require.ErrorIs(t, err, ErrSendFailed)
	require.ErrorIs(t, err, ErrConnClosed)

	require.ErrorIs(t, c.Start(context.Background()), ErrConnClosed)
}

func TestConnStopIdle(t *testing.T) {
	tr, peer := newPipeTransport()
	defer peer.Close()

	c := NewConn(tr, ConnConfig{})
	rec := &recorder{}
	c.Subscribe(rec)

	c.Stop()
	waitDone(t, c)

	require.Equal(t, []error{nil}, rec.closes)
	require.Equal(t, int32(1), tr.closes.Load())
}

func TestConnNoEventsAfterStop(t *testing.T) {
	c, _, peer, rec := startConn(t)
	defer peer.Close()

	go func() {
		for i := 0; i < 100; i++ {
			if _, err := peer.Write([]byte{0x24, 0, 0x00, 0x01, 0xFF}); err != nil {
				return
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	c.Stop()

	rec.lock.Lock()
	n := len(rec.chunks)
	rec.lock.Unlock()

	time.Sleep(10 * time.Millisecond)

	rec.lock.Lock()
	defer rec.lock.Unlock()

	require.Equal(t, n, len(rec.chunks))
	require.Len(t, rec.closes, 1)
}

func TestConnSubscribeCancel(t *testing.T) {
	tr, peer := newPipeTransport()

	c := NewConn(tr, ConnConfig{})

	rec1 := &recorder{}
	rec2 := &recorder{}
	c.Subscribe(rec1)
	cancel := c.Subscribe(rec2)
	cancel()

	require.NoError(t, c.Start(context.Background()))

	_, err := peer.Write([]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)

	peer.Close()
	waitDone(t, c)

	require.Len(t, rec1.messages, 1)
	require.Len(t, rec2.messages, 0)
	require.Len(t, rec2.closes, 0)
}

func TestConnSendOversized(t *testing.T) {
	tr, peer := newPipeTransport()
	defer peer.Close()

	c := NewConn(tr, ConnConfig{})

	payload := make([]byte, 0x10001)

	err := c.SendData(1, payload)
	require.ErrorIs(t, err, ErrChunkTooLarge)

	err = <-c.SendDataAsync(1, payload)
	require.ErrorIs(t, err, ErrChunkTooLarge)

	require.Equal(t, int32(0), tr.writes.Load())
	require.Equal(t, uint64(0), c.TxBytes())
}

func TestConnSendData(t *testing.T) {
	tr, peer := newPipeTransport()
	defer peer.Close()

	c := NewConn(tr, ConnConfig{})

	payload := bytes.Repeat([]byte{0x42}, MaxChunkPayload)

	result := c.SendDataAsync(5, payload)

	chunk, err := ReadChunk(peer)
	require.NoError(t, err)
	require.NoError(t, <-result)

	require.Equal(t, uint8(5), chunk.Channel)
	require.Equal(t, payload, chunk.Payload)
	require.Equal(t, int32(1), tr.writes.Load())
	require.Equal(t, uint64(MaxChunkPayload+4), c.TxBytes())
}

func TestConnSendFailure(t *testing.T) {
	tr, peer := newPipeTransport()
	peer.Close()

	c := NewConn(tr, ConnConfig{})

	err := c.SendMessage(NewRequest(Options, ""))
	require.ErrorIs(t, err, ErrSendFailed)

	err = c.SendData(0, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrSendFailed)
}

func TestConnConcurrentSends(t *testing.T) {
	tr, peer := newPipeTransport()
	defer peer.Close()

	c := NewConn(tr, ConnConfig{})

	const senders = 8
	const rounds = 20

	wg := sync.WaitGroup{}

	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			for j := 0; j < rounds; j++ {
				if j%2 == 0 {
					req := NewRequest(SetParameter, "rtsp://example.com/live")
					req.SetCSeq(i*rounds + j)
					req.SetBody(bytes.Repeat([]byte{'a' + byte(i)}, 100+j))
					c.SendMessage(req)
				} else {
					c.SendData(uint8(i), bytes.Repeat([]byte{byte(i)}, 1000+j))
				}
			}
		}(i)
	}

	r := bufio.NewReader(peer)

	messages := 0
	chunks := 0

	for messages+chunks < senders*rounds {
		b, err := r.Peek(1)
		require.NoError(t, err)

		if b[0] == ChunkMarker {
			chunk, err := ReadChunk(r)
			require.NoError(t, err)
			require.Equal(t, bytes.Repeat([]byte{chunk.Channel}, len(chunk.Payload)), chunk.Payload)
			chunks++
			continue
		}

		m, err := ReadMessage(r)
		require.NoError(t, err)

		cseq, ok := m.CSeq()
		require.True(t, ok)
		require.Equal(t, bytes.Repeat([]byte{'a' + byte(cseq/rounds)}, len(m.Body())), m.Body())
		messages++
	}

	wg.Wait()

	require.Equal(t, senders*rounds/2, messages)
	require.Equal(t, senders*rounds/2, chunks)
}

func TestConnDo(t *testing.T) {
	c, _, peer, rec := startConn(t)

	go func() {
		r := bufio.NewReader(peer)

		requests := []Message{}
		for i := 0; i < 2; i++ {
			m, err := ReadMessage(r)
			if err != nil {
				return
			}
			requests = append(requests, m)
		}

		// unsolicited response first, then answers in reverse order
		unsolicited := NewResponse(StatusOK)
		unsolicited.SetCSeq(99)
		peer.Write(Marshal(unsolicited))

		for i := len(requests) - 1; i >= 0; i-- {
			cseq, _ := requests[i].CSeq()
			res := NewResponse(StatusOK)
			res.SetCSeq(cseq)
			res.Header().Set("X-Method", requests[i].(*Request).Method.String())
			res.SetBody([]byte(strconv.Itoa(cseq)))
			peer.Write(Marshal(res))
		}
	}()

	type result struct {
		res *Response
		err error
	}

	results := make(chan result, 2)

	for _, m := range []Method{Describe, GetParameter} {
		go func(m Method) {
			req := NewRequest(m, "rtsp://example.com/live")
			res, err := c.Do(context.Background(), req)
			results <- result{res, err}
		}(m)
	}

	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.NotNil(t, r.res.Request)
		require.Equal(t, r.res.Request.Method.String(), r.res.Header().Get("X-Method"))

		cseq, _ := r.res.Request.CSeq()
		require.Equal(t, strconv.Itoa(cseq), string(r.res.Body()))
	}

	c.Stop()

	require.Len(t, rec.messages, 1)

	cseq, _ := rec.messages[0].CSeq()
	require.Equal(t, 99, cseq)
}

func TestConnDoClosed(t *testing.T) {
	c, _, peer, _ := startConn(t)

	go func() {
		r := bufio.NewReader(peer)
		ReadMessage(r)
		peer.Close()
	}()

	_, err := c.Do(context.Background(), NewRequest(Options, ""))
	require.ErrorIs(t, err, ErrConnClosed)

	waitDone(t, c)

	_, err = c.Do(context.Background(), NewRequest(Options, ""))
	require.Error(t, err)
}

func TestConnDoContext(t *testing.T) {
	c, _, peer, _ := startConn(t)
	defer c.Stop()

	go io.Copy(io.Discard, peer)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Do(ctx, NewRequest(Options, ""))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnNextCSeq(t *testing.T) {
	tr, peer := newPipeTransport()
	defer peer.Close()

	c := NewConn(tr, ConnConfig{})

	require.Equal(t, 1, c.NextCSeq())
	require.Equal(t, 2, c.NextCSeq())
}
