package suite

import (
	"crypto/ecdh"
	"io"

	"github.com/pion/dtls/v2/pkg/crypto/elliptic"
	"github.com/pion/dtls/v2/pkg/crypto/prf"
	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// Curves lists the named groups a client offers, in preference order.
var Curves = []elliptic.Curve{elliptic.X25519, elliptic.P256, elliptic.P384}

// SupportedCurve reports whether c is one of Curves.
func SupportedCurve(c elliptic.Curve) bool {
	for _, x := range Curves {
		if x == c {
			return true
		}
	}
	return false
}

// KeyShare is an ephemeral ECDH key pair on a named curve.
type KeyShare struct {
	Curve   elliptic.Curve
	Public  []byte
	private []byte
}

// GenerateKeyShare draws a fresh key pair on curve from rand. X25519
// private keys are clamped per RFC 7748; NIST public keys are
// uncompressed points.
func GenerateKeyShare(curve elliptic.Curve, rand io.Reader) (*KeyShare, error) {
	k := &KeyShare{Curve: curve}
	switch curve {
	case elliptic.X25519:
		k.private = make([]byte, curve25519.ScalarSize)
		if _, err := io.ReadFull(rand, k.private); err != nil {
			return nil, errors.Wrap(err, "key share")
		}
		k.private[0] &= 248
		k.private[31] &= 127
		k.private[31] |= 64
		pub, err := curve25519.X25519(k.private, curve25519.Basepoint)
		if err != nil {
			return nil, errors.Wrap(err, "key share")
		}
		k.Public = pub
	case elliptic.P256, elliptic.P384:
		c := ecdh.P256()
		if curve == elliptic.P384 {
			c = ecdh.P384()
		}
		priv, err := c.GenerateKey(rand)
		if err != nil {
			return nil, errors.Wrap(err, "key share")
		}
		k.private = priv.Bytes()
		k.Public = priv.PublicKey().Bytes()
	default:
		return nil, errors.Errorf("unsupported curve %s", curve)
	}
	return k, nil
}

// Shared computes the pre-master secret with the peer's public share.
// Invalid points, including X25519 low-order points, are rejected.
func (k *KeyShare) Shared(peer []byte) ([]byte, error) {
	if len(peer) != len(k.Public) {
		return nil, errors.Errorf("key share of %d bytes on %s", len(peer), k.Curve)
	}
	secret, err := prf.PreMasterSecret(peer, k.private, k.Curve)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", k.Curve)
	}
	return secret, nil
}

// Zero wipes the private key.
func (k *KeyShare) Zero() {
	if k == nil {
		return
	}
	Zero(k.private)
}
