package suite

import (
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/ciphersuite"
	"golang.org/x/crypto/chacha20poly1305"
)

// ID identifies a cipher suite on the wire.
type ID uint16

// Cipher suites offered by the client, all ECDHE with SHA-256 PRF.
//
//nolint:revive,stylecheck
const (
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256       ID = 0xC02B
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256         ID = 0xC02F
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256 ID = 0xCCA9
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256   ID = 0xCCA8
)

// Auth is the certificate key family a suite authenticates with.
type Auth uint8

const (
	// AuthECDSA covers ECDSA and Ed25519 server keys.
	AuthECDSA Auth = iota + 1
	AuthRSA
)

func (a Auth) String() string {
	switch a {
	case AuthECDSA:
		return "ecdsa"
	case AuthRSA:
		return "rsa"
	default:
		return "unknown"
	}
}

// Suite describes one cipher suite.
type Suite struct {
	ID       ID
	Name     string
	Auth     Auth
	KeyLen   int
	IVLen    int
	Overhead int

	newCipher func(localKey, localIV, remoteKey, remoteIV []byte) (RecordCipher, error)
}

func (s *Suite) String() string { return s.Name }

const gcmOverhead = 8 + 16

func newGCM(localKey, localIV, remoteKey, remoteIV []byte) (RecordCipher, error) {
	c, err := ciphersuite.NewGCM(localKey, localIV, remoteKey, remoteIV)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var suites = []*Suite{
	{
		ID: TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, Name: "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
		Auth: AuthECDSA, KeyLen: 16, IVLen: 4, Overhead: gcmOverhead, newCipher: newGCM,
	},
	{
		ID: TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, Name: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		Auth: AuthRSA, KeyLen: 16, IVLen: 4, Overhead: gcmOverhead, newCipher: newGCM,
	},
	{
		ID: TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
		Auth: AuthECDSA, KeyLen: chacha20poly1305.KeySize, IVLen: chacha20poly1305.NonceSize,
		Overhead: chacha20poly1305.Overhead, newCipher: newChaCha,
	},
	{
		ID: TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256, Name: "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
		Auth: AuthRSA, KeyLen: chacha20poly1305.KeySize, IVLen: chacha20poly1305.NonceSize,
		Overhead: chacha20poly1305.Overhead, newCipher: newChaCha,
	},
}

// Supported lists the suite IDs a client offers, in preference order.
var Supported = func() []uint16 {
	ids := make([]uint16, len(suites))
	for i, s := range suites {
		ids[i] = uint16(s.ID)
	}
	return ids
}()

// MaxOverhead is the largest record expansion of any supported suite.
const MaxOverhead = gcmOverhead

// Lookup returns the suite with the given ID.
func Lookup(id uint16) (*Suite, bool) {
	for _, s := range suites {
		if uint16(s.ID) == id {
			return s, true
		}
	}
	return nil, false
}

// Name returns the suite name for logs, or the hex ID when unknown.
func Name(id uint16) string {
	if s, ok := Lookup(id); ok {
		return s.Name
	}
	return fmt.Sprintf("0x%04x", id)
}
