package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every datagram with the same bytes until the test ends.
func echoServer(t *testing.T) *net.UDPAddr {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := pc.ReadFromUDP(buf)
			if err != nil {
				return
			}
			pc.WriteToUDP(buf[:n], addr)
		}
	}()
	return pc.LocalAddr().(*net.UDPAddr)
}

func dial(t *testing.T, addr *net.UDPAddr) Transport {
	t.Helper()
	tr, err := DialUDP(context.Background(), addr.IP.String(), strconv.Itoa(addr.Port))
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestUDPEcho(t *testing.T) {
	tr := dial(t, echoServer(t))

	n, err := tr.Send([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 64)
	n, timedOut, err := tr.RecvTimeout(buf, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, timedOut)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestUDPRecvTimeout(t *testing.T) {
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer pc.Close()

	tr := dial(t, pc.LocalAddr().(*net.UDPAddr))

	start := time.Now()
	n, timedOut, err := tr.RecvTimeout(make([]byte, 16), 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, timedOut)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	_, timedOut, err = tr.RecvTimeout(make([]byte, 16), 0)
	require.NoError(t, err)
	assert.True(t, timedOut, "zero wait polls")
}

func TestUDPRefusedIsLoss(t *testing.T) {
	// Grab a port, then close it so nothing listens there.
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := pc.LocalAddr().(*net.UDPAddr)
	pc.Close()

	tr := dial(t, addr)
	_, err = tr.Send([]byte("anyone?"))
	require.NoError(t, err)

	_, timedOut, err := tr.RecvTimeout(make([]byte, 16), 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, timedOut)

	_, err = tr.Send([]byte("again"))
	assert.NoError(t, err)
}

func TestUDPClose(t *testing.T) {
	tr := dial(t, echoServer(t))

	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close(), "second close returns the first result")

	_, err := tr.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = tr.RecvTimeout(make([]byte, 4), time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialUDPBadAddress(t *testing.T) {
	_, err := DialUDP(context.Background(), "256.0.0.1", "x")
	assert.Error(t, err)
}
