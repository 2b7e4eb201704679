package suite

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	pionelliptic "github.com/pion/dtls/v2/pkg/crypto/elliptic"
	"github.com/pion/dtls/v2/pkg/crypto/hash"
	"github.com/pion/dtls/v2/pkg/crypto/signature"
	"github.com/pion/dtls/v2/pkg/crypto/signaturehash"
	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marz6759/goldy/pkg/wire"
)

var (
	clientRandom = bytes.Repeat([]byte{1}, 32)
	serverRandom = bytes.Repeat([]byte{2}, 32)
)

func preMaster(t *testing.T, curve pionelliptic.Curve) ([]byte, []byte) {
	t.Helper()
	a, err := GenerateKeyShare(curve, rand.Reader)
	require.NoError(t, err)
	b, err := GenerateKeyShare(curve, rand.Reader)
	require.NoError(t, err)

	s1, err := a.Shared(b.Public)
	require.NoError(t, err)
	s2, err := b.Shared(a.Public)
	require.NoError(t, err)
	return s1, s2
}

func sessionKeys(t *testing.T, s *Suite) (*Keys, *Keys) {
	t.Helper()
	pms, _ := preMaster(t, pionelliptic.X25519)
	k1, err := DeriveKeys(s, pms, clientRandom, serverRandom, nil)
	require.NoError(t, err)
	k2, err := DeriveKeys(s, pms, clientRandom, serverRandom, nil)
	require.NoError(t, err)
	return k1, k2
}

func TestKeyAgreement(t *testing.T) {
	for _, curve := range Curves {
		t.Run(curve.String(), func(t *testing.T) {
			s1, s2 := preMaster(t, curve)
			assert.Equal(t, s1, s2)
			assert.NotEmpty(t, s1)
		})
	}
	_, err := GenerateKeyShare(pionelliptic.Curve(0x99), rand.Reader)
	assert.Error(t, err)
}

func TestSharedRejectsBadPoint(t *testing.T) {
	k, err := GenerateKeyShare(pionelliptic.X25519, rand.Reader)
	require.NoError(t, err)
	_, err = k.Shared([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = k.Shared(make([]byte, 32))
	assert.Error(t, err, "all-zero point is low order")

	p, err := GenerateKeyShare(pionelliptic.P256, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, p.Public, 65)
	_, err = p.Shared(make([]byte, 65))
	assert.Error(t, err, "not on the curve")
}

func TestTranscript(t *testing.T) {
	var tr Transcript
	tr.Add([]byte("a"))
	tr.Add([]byte("b"))
	want := sha256.Sum256([]byte("ab"))
	assert.Equal(t, want[:], tr.Sum())
	assert.Equal(t, []byte("ab"), tr.Bytes())

	tr.Reset()
	empty := sha256.Sum256(nil)
	assert.Equal(t, empty[:], tr.Sum())
}

func TestFinished(t *testing.T) {
	s, _ := Lookup(uint16(TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256))
	k, peer := sessionKeys(t, s)
	transcript := []byte("handshake messages")

	client, err := k.ClientFinished(transcript)
	require.NoError(t, err)
	assert.Len(t, client, 12)
	server, err := k.ServerFinished(transcript)
	require.NoError(t, err)
	assert.NotEqual(t, client, server)

	again, err := peer.ClientFinished(transcript)
	require.NoError(t, err)
	require.NoError(t, VerifyFinished(client, again))
	assert.True(t, errors.Is(VerifyFinished(client, server), ErrBadFinished))

	k.Zero()
	wiped, err := k.ClientFinished(transcript)
	require.NoError(t, err)
	assert.NotEqual(t, client, wiped)
}

func TestExtendedMasterSecret(t *testing.T) {
	s, _ := Lookup(uint16(TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256))
	pms, _ := preMaster(t, pionelliptic.X25519)
	sessionHash := sha256.Sum256([]byte("through client_key_exchange"))

	plain, err := DeriveKeys(s, pms, clientRandom, serverRandom, nil)
	require.NoError(t, err)
	ems, err := DeriveKeys(s, pms, clientRandom, serverRandom, sessionHash[:])
	require.NoError(t, err)

	a, _ := plain.ClientFinished(nil)
	b, _ := ems.ClientFinished(nil)
	assert.NotEqual(t, a, b)
}

func TestSignVerify(t *testing.T) {
	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, ed, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	params := []byte{3, 0, 0x1D, 1, 9}

	tests := []struct {
		name   string
		signer crypto.Signer
		want   signaturehash.Algorithm
	}{
		{"ecdsa p256", p256, signaturehash.Algorithm{Hash: hash.SHA256, Signature: signature.ECDSA}},
		{"ecdsa p384", p384, signaturehash.Algorithm{Hash: hash.SHA384, Signature: signature.ECDSA}},
		{"ed25519", ed, signaturehash.Algorithm{Hash: hash.Ed25519, Signature: signature.Ed25519}},
		{"rsa", rsaKey, signaturehash.Algorithm{Hash: hash.SHA256, Signature: signature.RSA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, sig, err := SignKeyExchange(rand.Reader, tt.signer, clientRandom, serverRandom, params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, alg)
			pub := tt.signer.Public()
			require.NoError(t, VerifyKeyExchange(pub, alg, clientRandom, serverRandom, params, sig))

			err = VerifyKeyExchange(pub, alg, serverRandom, clientRandom, params, sig)
			assert.True(t, errors.Is(err, ErrBadSignature), "swapped randoms: %v", err)
		})
	}

	_, sig, err := SignKeyExchange(rand.Reader, p256, clientRandom, serverRandom, params)
	require.NoError(t, err)
	err = VerifyKeyExchange(&p256.PublicKey, tests[2].want, clientRandom, serverRandom, params, sig)
	assert.True(t, errors.Is(err, ErrBadSignature), "algorithm mismatch: %v", err)
	sha1 := signaturehash.Algorithm{Hash: hash.SHA1, Signature: signature.ECDSA}
	err = VerifyKeyExchange(&p256.PublicKey, sha1, clientRandom, serverRandom, params, sig)
	assert.True(t, errors.Is(err, ErrBadSignature), "sha1 is not offered: %v", err)

	auth, err := AuthOf(&rsaKey.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, AuthRSA, auth)
	auth, err = AuthOf(ed.Public())
	require.NoError(t, err)
	assert.Equal(t, AuthECDSA, auth)
}

func TestRecordCiphers(t *testing.T) {
	for _, id := range Supported {
		s, ok := Lookup(id)
		require.True(t, ok)
		t.Run(s.Name, func(t *testing.T) {
			k1, k2 := sessionKeys(t, s)
			client, err := k1.Cipher(true)
			require.NoError(t, err)
			server, err := k2.Cipher(false)
			require.NoError(t, err)

			rec, raw, err := wire.NewRecord(1, 7, &protocol.ApplicationData{Data: []byte("ping")})
			require.NoError(t, err)
			sealed, err := client.Encrypt(rec, raw)
			require.NoError(t, err)
			assert.Len(t, sealed, wire.RecordHeaderLen+4+s.Overhead)

			recs, err := wire.SplitRecords(sealed)
			require.NoError(t, err)
			require.Len(t, recs, 1)

			out, err := server.Decrypt(append([]byte(nil), recs[0].Raw...))
			require.NoError(t, err)
			assert.Equal(t, []byte("ping"), out[wire.RecordHeaderLen:])

			// The client cannot open its own direction.
			_, err = client.Decrypt(append([]byte(nil), sealed...))
			assert.Error(t, err)

			// A tampered sequence number fails authentication.
			tampered := append([]byte(nil), sealed...)
			tampered[10] ^= 1
			_, err = server.Decrypt(tampered)
			assert.Error(t, err)
		})
	}
}

func TestLookup(t *testing.T) {
	s, ok := Lookup(0xCCA9)
	require.True(t, ok)
	assert.Equal(t, AuthECDSA, s.Auth)
	assert.Equal(t, 16, s.Overhead)
	_, ok = Lookup(0x1301)
	assert.False(t, ok)
	assert.Equal(t, "0x1301", Name(0x1301))
	assert.Equal(t, uint16(TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256), Supported[0])
	assert.True(t, SupportedCurve(pionelliptic.P384))
}

func TestReplayWindow(t *testing.T) {
	var w ReplayWindow

	assert.True(t, w.Check(5))
	w.Accept(5)
	assert.False(t, w.Check(5), "duplicate")
	assert.True(t, w.Check(3), "older but unseen")
	w.Accept(3)
	assert.False(t, w.Check(3))

	w.Accept(100)
	assert.False(t, w.Check(5), "fell out of the window")
	assert.True(t, w.Check(99))
	assert.True(t, w.Check(37))
	assert.False(t, w.Check(36))

	w.Accept(300)
	assert.False(t, w.Check(100))
	assert.True(t, w.Check(299))
}
