package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"
)

type TCPConfig struct {
	// Timeout for establishing the connection. Zero means no timeout.
	DialTimeout time.Duration

	// KeepAlive period. Zero enables keep-alives with the default period,
	// negative disables them.
	KeepAlive time.Duration
}

type tcp struct {
	addr   string
	dialer net.Dialer

	lock   sync.RWMutex
	conn   net.Conn
	closed bool

	stream *stream
}

// NewTCP returns a Transport that dials the given address.
func NewTCP(addr string, config TCPConfig) Transport {
	t := &tcp{
		addr: addr,
		dialer: net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		},
	}

	t.stream = &stream{current: t.current}

	return t
}

func (t *tcp) Connect(ctx context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return ErrClosed
	}

	if t.conn != nil {
		return nil
	}

	return t.dial(ctx)
}

func (t *tcp) Reconnect(ctx context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return ErrClosed
	}

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}

	return t.dial(ctx)
}

func (t *tcp) dial(ctx context.Context) error {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}

	t.conn = conn

	return nil
}

func (t *tcp) IsConnected() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.conn != nil
}

func (t *tcp) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.closed = true

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil

	return err
}

func (t *tcp) Stream() io.ReadWriter {
	return t.stream
}

func (t *tcp) current() net.Conn {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.conn
}

func (t *tcp) LocalAddr() string {
	return addrString(t.current(), true)
}

func (t *tcp) RemoteAddr() string {
	if conn := t.current(); conn != nil {
		return conn.RemoteAddr().String()
	}

	return t.addr
}

// stream forwards to whatever connection is current at the time of the call.
type stream struct {
	current func() net.Conn
}

func (s *stream) Read(p []byte) (int, error) {
	conn := s.current()
	if conn == nil {
		return 0, ErrNotConnected
	}

	return conn.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	conn := s.current()
	if conn == nil {
		return 0, ErrNotConnected
	}

	return conn.Write(p)
}

func addrString(conn net.Conn, local bool) string {
	if conn == nil {
		return ""
	}

	if local {
		return conn.LocalAddr().String()
	}

	return conn.RemoteAddr().String()
}
