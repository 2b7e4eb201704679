package dtlserr

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	for _, tc := range []struct {
		err   error
		error string
		kind  Kind
		code  int
		step  string
	}{
		{
			err:   New(KindTransport, "connect", io.ErrClosedPipe),
			error: "connect: transport error: io: read/write on closed pipe",
			kind:  KindTransport,
			code:  10,
			step:  "connect",
		},
		{
			err:   ErrHandshakeTimeout,
			error: "handshake timeout",
			kind:  KindHandshakeTimeout,
			code:  20,
		},
		{
			err:   errors.Wrap(New(KindNoResponse, "exchange", nil), "request"),
			error: "request: exchange: no response",
			kind:  KindNoResponse,
			code:  41,
			step:  "exchange",
		},
		{
			err:   Newf(KindBufferTooSmall, "read", "need %d bytes, have %d", 10, 4),
			error: "read: buffer too small: need 10 bytes, have 4",
			kind:  KindBufferTooSmall,
			code:  51,
			step:  "read",
		},
		{
			err:   fmt.Errorf("plain"),
			error: "plain",
			kind:  KindUnknown,
			code:  -1,
		},
	} {
		assert.Equal(t, tc.error, tc.err.Error())
		assert.Equal(t, tc.kind, KindOf(tc.err))
		assert.Equal(t, tc.code, Code(tc.err))
		assert.Equal(t, tc.step, Step(tc.err))
	}
	assert.Equal(t, 0, Code(nil))
}

func TestErrorIs(t *testing.T) {
	err := errors.Wrap(New(KindReadTimeout, "read", nil), "attempt 2")

	assert.True(t, errors.Is(err, ErrReadTimeout))
	assert.False(t, errors.Is(err, ErrNoResponse))
	assert.False(t, errors.Is(err, New(KindReadTimeout, "read", nil)), "only sentinels match by kind")

	cause := io.ErrUnexpectedEOF
	assert.True(t, errors.Is(New(KindIO, "recv", cause), cause))
}

func TestKindFatal(t *testing.T) {
	for k, want := range map[Kind]bool{
		KindTransport:        true,
		KindHandshakeTimeout: true,
		KindUntrustedPeer:    true,
		KindNoResponse:       true,
		KindReadTimeout:      false,
		KindBufferTooSmall:   false,
		KindPeerClosed:       false,
	} {
		assert.Equal(t, want, k.Fatal(), k.String())
	}
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
