package entropy

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marz6759/goldy/pkg/dtlserr"
)

// fixedSource repeats a byte pattern.
type fixedSource struct{ b byte }

func (s fixedSource) Fill(p []byte) error {
	for i := range p {
		p[i] = s.b
	}
	return nil
}

type failingSource struct{}

func (failingSource) Fill([]byte) error { return io.ErrUnexpectedEOF }

func TestSystem(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	require.NoError(t, System.Fill(a))
	require.NoError(t, System.Fill(b))
	assert.NotEqual(t, a, b)
}

func TestDRBGDeterministic(t *testing.T) {
	d1, err := NewDRBG(fixedSource{7}, "dtls_client")
	require.NoError(t, err)
	d2, err := NewDRBG(fixedSource{7}, "dtls_client")
	require.NoError(t, err)

	a := make([]byte, 48)
	b := make([]byte, 48)
	require.NoError(t, d1.Fill(a))
	require.NoError(t, d2.Fill(b))
	assert.Equal(t, a, b, "same seed and personalization must agree")

	require.NoError(t, d1.Fill(b))
	assert.NotEqual(t, a, b, "successive outputs must differ")
}

func TestDRBGPersonalization(t *testing.T) {
	d1, err := NewDRBG(fixedSource{7}, "dtls_client")
	require.NoError(t, err)
	d2, err := NewDRBG(fixedSource{7}, "other")
	require.NoError(t, err)

	a := make([]byte, 32)
	b := make([]byte, 32)
	require.NoError(t, d1.Fill(a))
	require.NoError(t, d2.Fill(b))
	assert.NotEqual(t, a, b)
}

func TestDRBGNotAllZero(t *testing.T) {
	d, err := NewDRBG(fixedSource{0}, "dtls_client")
	require.NoError(t, err)

	p := make([]byte, 64)
	require.NoError(t, d.Fill(p))
	assert.False(t, bytes.Equal(p, make([]byte, 64)))
}

func TestDRBGSeedFailure(t *testing.T) {
	_, err := NewDRBG(failingSource{}, "dtls_client")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dtlserr.ErrEntropy))
	assert.Equal(t, "seed", dtlserr.Step(err))
}

func TestReader(t *testing.T) {
	p := make([]byte, 5)
	n, err := io.ReadFull(Reader(fixedSource{3}), p)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{3, 3, 3, 3, 3}, p)

	_, err = Reader(failingSource{}).Read(p)
	assert.Error(t, err)
}
