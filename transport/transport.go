// Package transport provides the byte streams an RTSP connection runs on.
package transport

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNotSupported = errors.New("not supported")
	ErrClosed       = errors.New("transport closed")
)

// Transport is a duplex byte stream that can be (re)established.
type Transport interface {
	// Connect establishes the stream. It is a no-op if the stream is already connected.
	Connect(ctx context.Context) error

	// Reconnect closes the current stream, if any, and establishes a new one.
	Reconnect(ctx context.Context) error

	// IsConnected returns whether the stream is established.
	IsConnected() bool

	// Close closes the stream. Pending reads and writes on the stream return with an error.
	Close() error

	// Stream returns the byte stream. The returned value stays valid across reconnects.
	Stream() io.ReadWriter
}

// Addresser is implemented by transports that know their endpoints.
type Addresser interface {
	LocalAddr() string
	RemoteAddr() string
}
