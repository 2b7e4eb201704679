package transport

import (
	"context"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// UDP is a Transport over a connected UDP socket.
type UDP struct {
	conn *net.UDPConn

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

// DialUDP resolves host:port and connects a UDP socket to it.
func DialUDP(ctx context.Context, host, port string) (Transport, error) {
	addr := net.JoinHostPort(host, port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewUDP(conn.(*net.UDPConn)), nil
}

// NewUDP wraps an already connected socket.
func NewUDP(conn *net.UDPConn) *UDP {
	return &UDP{conn: conn}
}

// LocalAddr returns the local socket address.
func (t *UDP) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// RemoteAddr returns the peer address.
func (t *UDP) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

func (t *UDP) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Send writes one datagram.
func (t *UDP) Send(p []byte) (int, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}
	n, err := t.conn.Write(p)
	switch {
	case err == nil:
		return n, nil
	case wouldBlock(err):
		return 0, ErrWouldBlock
	case refused(err):
		// A stale ICMP error from an earlier datagram; this one was
		// still handed to the kernel.
		return len(p), nil
	case errors.Is(err, net.ErrClosed):
		return 0, ErrClosed
	default:
		return n, errors.Wrap(err, "udp send")
	}
}

// RecvTimeout waits up to d for one datagram. A non-positive d polls.
// Port-unreachable notifications are treated as loss and the wait goes on.
func (t *UDP) RecvTimeout(p []byte, d time.Duration) (int, bool, error) {
	if t.isClosed() {
		return 0, false, ErrClosed
	}
	deadline := time.Now().Add(d)
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, false, errors.Wrap(err, "udp deadline")
	}
	for {
		n, err := t.conn.Read(p)
		switch {
		case err == nil:
			return n, false, nil
		case timedOut(err):
			return 0, true, nil
		case refused(err):
			if !time.Now().Before(deadline) {
				return 0, true, nil
			}
			continue
		case errors.Is(err, net.ErrClosed):
			return 0, false, ErrClosed
		default:
			return 0, false, errors.Wrap(err, "udp recv")
		}
	}
}

// Close closes the socket once. Later calls return the first result.
func (t *UDP) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func timedOut(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func wouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, syscall.ENOBUFS)
}

func refused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
