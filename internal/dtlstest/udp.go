package dtlstest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/transport"
)

// packetTransport serves a single client on an unconnected UDP socket,
// replying to whoever sent the latest datagram.
type packetTransport struct {
	conn *net.UDPConn

	mu   sync.Mutex
	last *net.UDPAddr
}

// ServeUDP starts a Peer on a loopback UDP port and returns its port.
func ServeUDP(t testing.TB, cfg PeerConfig) (*Peer, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	pt := &packetTransport{conn: conn}
	p := Start(t, pt, cfg)
	t.Cleanup(func() { _ = pt.Close() })
	_, port, _ := net.SplitHostPort(conn.LocalAddr().String())
	return p, port
}

func (t *packetTransport) Send(p []byte) (int, error) {
	t.mu.Lock()
	to := t.last
	t.mu.Unlock()
	if to == nil {
		return len(p), nil
	}
	return t.conn.WriteToUDP(p, to)
}

func (t *packetTransport) RecvTimeout(p []byte, d time.Duration) (int, bool, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return 0, false, transport.ErrClosed
	}
	n, from, err := t.conn.ReadFromUDP(p)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, true, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, false, transport.ErrClosed
		}
		return 0, false, err
	}
	t.mu.Lock()
	t.last = from
	t.mu.Unlock()
	return n, false, nil
}

func (t *packetTransport) Close() error { return t.conn.Close() }
