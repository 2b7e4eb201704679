package wire

import (
	"github.com/pion/dtls/v2/pkg/crypto/elliptic"
	"github.com/pion/dtls/v2/pkg/crypto/hash"
	"github.com/pion/dtls/v2/pkg/crypto/signature"
	"github.com/pion/dtls/v2/pkg/crypto/signaturehash"
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
)

// ServerKeyExchange carries the server's signed ephemeral ECDH share.
// Only named curves are spoken.
type ServerKeyExchange struct {
	Curve     elliptic.Curve
	PublicKey []byte
	Algorithm signaturehash.Algorithm
	Signature []byte
}

// Type implements handshake.Message.
func (m *ServerKeyExchange) Type() handshake.Type { return handshake.TypeServerKeyExchange }

// Params returns the ServerECDHParams covered by the signature.
func (m *ServerKeyExchange) Params() []byte {
	out := make([]byte, 0, 4+len(m.PublicKey))
	out = append(out, byte(elliptic.CurveTypeNamedCurve), byte(m.Curve>>8), byte(m.Curve), byte(len(m.PublicKey)))
	return append(out, m.PublicKey...)
}

// Marshal implements handshake.Message.
func (m *ServerKeyExchange) Marshal() ([]byte, error) {
	if len(m.PublicKey) == 0 || len(m.PublicKey) > 0xFF {
		return nil, errors.Wrap(ErrMalformed, "server_key_exchange public key length")
	}
	var b cryptobyte.Builder
	b.AddBytes(m.Params())
	b.AddUint8(uint8(m.Algorithm.Hash))
	b.AddUint8(uint8(m.Algorithm.Signature))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Signature)
	})
	return b.Bytes()
}

// Unmarshal implements handshake.Message.
func (m *ServerKeyExchange) Unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	var (
		curveType uint8
		curve     uint16
		pub, sig  cryptobyte.String
		h, sg     uint8
	)
	if !s.ReadUint8(&curveType) || !s.ReadUint16(&curve) || !s.ReadUint8LengthPrefixed(&pub) ||
		!s.ReadUint8(&h) || !s.ReadUint8(&sg) || !s.ReadUint16LengthPrefixed(&sig) || !s.Empty() {
		return errors.Wrap(ErrMalformed, "server_key_exchange")
	}
	if elliptic.CurveType(curveType) != elliptic.CurveTypeNamedCurve {
		return errors.Wrapf(ErrMalformed, "server_key_exchange curve type %d", curveType)
	}
	if len(pub) == 0 || len(sig) == 0 {
		return errors.Wrap(ErrMalformed, "server_key_exchange empty field")
	}
	m.Curve = elliptic.Curve(curve)
	m.PublicKey = append([]byte(nil), pub...)
	m.Algorithm = signaturehash.Algorithm{Hash: hash.Algorithm(h), Signature: signature.Algorithm(sg)}
	m.Signature = append([]byte(nil), sig...)
	return nil
}

// ClientKeyExchange carries the client's ephemeral ECDH share.
type ClientKeyExchange struct {
	PublicKey []byte
}

// Type implements handshake.Message.
func (m *ClientKeyExchange) Type() handshake.Type { return handshake.TypeClientKeyExchange }

// Marshal implements handshake.Message.
func (m *ClientKeyExchange) Marshal() ([]byte, error) {
	if len(m.PublicKey) == 0 || len(m.PublicKey) > 0xFF {
		return nil, errors.Wrap(ErrMalformed, "client_key_exchange public key length")
	}
	var b cryptobyte.Builder
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.PublicKey)
	})
	return b.Bytes()
}

// Unmarshal implements handshake.Message.
func (m *ClientKeyExchange) Unmarshal(data []byte) error {
	s := cryptobyte.String(data)
	var pub cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&pub) || !s.Empty() || len(pub) == 0 {
		return errors.Wrap(ErrMalformed, "client_key_exchange")
	}
	m.PublicKey = append([]byte(nil), pub...)
	return nil
}
