package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Transport is a connected, unreliable datagram channel.
// Implemented by UDP.
type Transport interface {
	// Send transmits one datagram. It returns ErrWouldBlock when the
	// datagram could not be queued and should be retried unchanged.
	Send(p []byte) (int, error)

	// RecvTimeout waits up to d for one datagram. A wait that ends with
	// no data reports timedOut and a nil error.
	RecvTimeout(p []byte, d time.Duration) (n int, timedOut bool, err error)

	// Close releases the underlying socket. Further calls fail with
	// ErrClosed.
	Close() error
}

// Dialer opens a Transport to host:port.
type Dialer func(ctx context.Context, host, port string) (Transport, error)

var (
	// ErrWouldBlock reports a send that should be retried.
	ErrWouldBlock = errors.New("transport: operation would block")

	// ErrClosed reports use of a closed transport.
	ErrClosed = errors.New("transport: closed")
)

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*UDP)(nil)
	_ Dialer    = DialUDP
)
