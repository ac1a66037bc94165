package transport

import (
	"context"
	"io"
	"net"
	"sync"
)

type conn struct {
	conn net.Conn

	lock   sync.Mutex
	closed bool
}

// NewConn returns a Transport for an already established connection, e.g. one
// returned by a listener. It can't be reconnected.
func NewConn(c net.Conn) Transport {
	return &conn{
		conn: c,
	}
}

func (c *conn) Connect(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return ErrClosed
	}

	return nil
}

func (c *conn) Reconnect(ctx context.Context) error {
	return ErrNotSupported
}

func (c *conn) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return !c.closed
}

func (c *conn) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	return c.conn.Close()
}

func (c *conn) Stream() io.ReadWriter {
	return c.conn
}

func (c *conn) LocalAddr() string {
	return addrString(c.conn, true)
}

func (c *conn) RemoteAddr() string {
	return addrString(c.conn, false)
}
