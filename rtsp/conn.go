package rtsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/datarhei/rtsp/log"
	"github.com/datarhei/rtsp/mem"
	"github.com/datarhei/rtsp/transport"

	"github.com/fujiwara/shapeio"
)

var (
	ErrConnClosed  = errors.New("connection closed")
	ErrConnStarted = errors.New("connection already started")
	ErrSendFailed  = errors.New("send failed")
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Observer receives the events of a connection. All methods are called from the
// receive goroutine of the connection, one at a time.
type Observer interface {
	OnMessage(c *Conn, m Message)
	OnData(c *Conn, chunk *Chunk)

	// OnClose is called exactly once when the connection stopped. err is nil if the
	// peer closed the stream or the connection has been stopped locally.
	OnClose(c *Conn, err error)
}

// ObserverFuncs implements Observer with optional functions.
type ObserverFuncs struct {
	Message func(c *Conn, m Message)
	Data    func(c *Conn, chunk *Chunk)
	Close   func(c *Conn, err error)
}

func (o ObserverFuncs) OnMessage(c *Conn, m Message) {
	if o.Message != nil {
		o.Message(c, m)
	}
}

func (o ObserverFuncs) OnData(c *Conn, chunk *Chunk) {
	if o.Data != nil {
		o.Data(c, chunk)
	}
}

func (o ObserverFuncs) OnClose(c *Conn, err error) {
	if o.Close != nil {
		o.Close(c, err)
	}
}

// CancelFunc removes a subscription.
type CancelFunc func()

type ConnConfig struct {
	Logger log.Logger

	// EgressRateLimit limits the outgoing bandwidth in kbit/s. 0 means unlimited.
	EgressRateLimit int64
}

// Conn multiplexes control messages and interleaved data chunks on a transport.
// A Conn can't be restarted after it stopped.
type Conn struct {
	id        ConnID
	transport transport.Transport
	logger    log.Logger

	state         atomic.Int32
	stopRequested atomic.Bool

	observerLock sync.Mutex
	observers    atomic.Pointer[[]*subscription]

	writeLock sync.Mutex
	writer    io.Writer

	pendingLock sync.Mutex
	pending     map[int]chan *Response
	cseq        atomic.Int64

	rxBytes atomic.Uint64
	txBytes atomic.Uint64

	closeTransportOnce sync.Once
	finishOnce         sync.Once
	done               chan struct{}
}

type subscription struct {
	observer Observer
}

// NewConn returns a Conn on the transport. Call Start to begin receiving.
func NewConn(t transport.Transport, config ConnConfig) *Conn {
	c := &Conn{
		id:        nextConnID(),
		transport: t,
		logger:    config.Logger,
		pending:   map[int]chan *Response{},
		done:      make(chan struct{}),
	}

	if c.logger == nil {
		c.logger = log.New("")
	}

	fields := log.Fields{"conn": uint64(c.id)}
	if a, ok := t.(transport.Addresser); ok {
		fields["remote"] = a.RemoteAddr()
	}

	c.logger = c.logger.WithFields(fields)

	observers := []*subscription{}
	c.observers.Store(&observers)

	c.writer = t.Stream()

	if config.EgressRateLimit > 0 {
		w := shapeio.NewWriter(c.writer)
		w.SetRateLimit(float64(config.EgressRateLimit) * 1024 / 8)

		c.writer = w
	}

	return c
}

func (c *Conn) ID() ConnID {
	return c.id
}

// Done is closed after the connection stopped and OnClose has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// RemoteAddr returns the address of the peer, if the transport knows it.
func (c *Conn) RemoteAddr() string {
	if a, ok := c.transport.(transport.Addresser); ok {
		return a.RemoteAddr()
	}

	return ""
}

func (c *Conn) RxBytes() uint64 {
	return c.rxBytes.Load()
}

func (c *Conn) TxBytes() uint64 {
	return c.txBytes.Load()
}

// Subscribe registers an observer. Observers subscribed after Start only receive
// the following events.
func (c *Conn) Subscribe(o Observer) CancelFunc {
	s := &subscription{observer: o}

	c.observerLock.Lock()
	old := *c.observers.Load()
	list := make([]*subscription, 0, len(old)+1)
	list = append(list, old...)
	list = append(list, s)
	c.observers.Store(&list)
	c.observerLock.Unlock()

	return func() {
		c.observerLock.Lock()
		defer c.observerLock.Unlock()

		old := *c.observers.Load()
		list := make([]*subscription, 0, len(old))
		for _, x := range old {
			if x != s {
				list = append(list, x)
			}
		}
		c.observers.Store(&list)
	}
}

// Start connects the transport if it isn't connected and starts receiving. If
// connecting fails, the connection is stopped.
func (c *Conn) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateIdle, stateRunning) {
		if c.state.Load() == stateStopped {
			return ErrConnClosed
		}
		return ErrConnStarted
	}

	if !c.transport.IsConnected() {
		if err := c.transport.Connect(ctx); err != nil {
			c.finish(err)
			return err
		}
	}

	r := bufio.NewReader(&countingReader{r: c.transport.Stream(), n: &c.rxBytes})

	go c.receive(r)

	return nil
}

// Stop closes the transport and waits until the receive loop exited. No events
// are delivered after Stop returns. Stop must not be called from an observer,
// use Close instead.
func (c *Conn) Stop() {
	c.stopRequested.Store(true)

	if c.state.Swap(stateStopped) == stateIdle {
		c.finish(nil)
		return
	}

	c.closeTransport()

	<-c.done
}

// Close closes the transport without waiting for the receive loop to exit.
func (c *Conn) Close() {
	c.stopRequested.Store(true)

	if c.state.Swap(stateStopped) == stateIdle {
		c.finish(nil)
		return
	}

	c.closeTransport()
}

func (c *Conn) closeTransport() {
	c.closeTransportOnce.Do(func() {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug().WithError(err).Log("Closing transport failed")
		}
	})
}

func (c *Conn) receive(r *bufio.Reader) {
	var err error

	defer func() {
		c.finish(err)
	}()

	for {
		var b []byte

		b, err = r.Peek(1)
		if err != nil {
			return
		}

		if b[0] == ChunkMarker {
			var chunk *Chunk

			chunk, err = ReadChunk(r)
			if err != nil {
				return
			}

			chunk.origin = c.id

			if c.state.Load() != stateRunning {
				return
			}

			for _, s := range *c.observers.Load() {
				s.observer.OnData(c, chunk)
			}

			continue
		}

		var m Message

		m, err = ReadMessage(r)
		if err != nil {
			return
		}

		m.SetOrigin(c.id)

		if c.state.Load() != stateRunning {
			return
		}

		if res, ok := m.(*Response); ok && c.resolve(res) {
			continue
		}

		for _, s := range *c.observers.Load() {
			s.observer.OnMessage(c, m)
		}
	}
}

// finish runs the close sequence once.
func (c *Conn) finish(err error) {
	c.finishOnce.Do(func() {
		c.state.Store(stateStopped)
		c.closeTransport()
		c.failPending()

		if errors.Is(err, io.EOF) {
			err = nil
		} else if c.stopRequested.Load() && (errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)) {
			err = nil
		}

		if err != nil {
			c.logger.Warn().WithError(err).Log("Connection closed")
		} else {
			c.logger.Debug().Log("Connection closed")
		}

		for _, s := range *c.observers.Load() {
			s.observer.OnClose(c, err)
		}

		close(c.done)
	})
}

// NextCSeq returns the next sequence number for an outgoing request, starting at 1.
func (c *Conn) NextCSeq() int {
	return int(c.cseq.Add(1))
}

// Do sends the request with the next sequence number and waits for the response
// with the same sequence number. The response is not delivered to observers.
func (c *Conn) Do(ctx context.Context, req *Request) (*Response, error) {
	cseq := c.NextCSeq()

	req.SetCSeq(cseq)
	req.SetOrigin(c.id)

	ch := make(chan *Response, 1)

	c.pendingLock.Lock()
	if c.pending == nil {
		c.pendingLock.Unlock()
		return nil, ErrConnClosed
	}
	c.pending[cseq] = ch
	c.pendingLock.Unlock()

	defer func() {
		c.pendingLock.Lock()
		if c.pending != nil {
			delete(c.pending, cseq)
		}
		c.pendingLock.Unlock()
	}()

	if err := c.SendMessage(req); err != nil {
		return nil, err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, ErrConnClosed
		}

		res.Request = req

		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) resolve(res *Response) bool {
	cseq, ok := res.CSeq()
	if !ok {
		return false
	}

	c.pendingLock.Lock()
	ch, ok := c.pending[cseq]
	if ok {
		delete(c.pending, cseq)
	}
	c.pendingLock.Unlock()

	if !ok {
		return false
	}

	ch <- res

	return true
}

func (c *Conn) failPending() {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	for _, ch := range c.pending {
		close(ch)
	}

	c.pending = nil
}

// SendMessage writes the message with a single write. A failing transport is
// reported with an error wrapping ErrSendFailed.
func (c *Conn) SendMessage(m Message) error {
	buf := mem.Get()
	defer mem.Put(buf)

	marshal(buf, m)

	return c.write(buf.Bytes())
}

// SendData writes a data chunk on the channel. A payload larger than
// MaxChunkPayload is rejected with ErrChunkTooLarge before anything is written.
func (c *Conn) SendData(channel uint8, payload []byte) error {
	h, err := chunkHeader(channel, len(payload))
	if err != nil {
		return err
	}

	buf := mem.Get()
	defer mem.Put(buf)

	buf.Write(h[:])
	buf.Write(payload)

	return c.write(buf.Bytes())
}

// SendDataAsync is like SendData but doesn't wait for the write. The returned
// channel receives the result. The payload must not be modified until then.
func (c *Conn) SendDataAsync(channel uint8, payload []byte) <-chan error {
	result := make(chan error, 1)

	if _, err := chunkHeader(channel, len(payload)); err != nil {
		result <- err
		close(result)
		return result
	}

	go func() {
		result <- c.SendData(channel, payload)
		close(result)
	}()

	return result
}

func (c *Conn) write(p []byte) error {
	if c.state.Load() == stateStopped {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrConnClosed)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	n, err := c.writer.Write(p)
	c.txBytes.Add(uint64(n))

	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	return nil
}

type countingReader struct {
	r io.Reader
	n *atomic.Uint64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n.Add(uint64(n))

	return n, err
}
