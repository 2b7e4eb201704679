package entropy

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"github.com/Marz6759/goldy/pkg/dtlserr"
)

// Source fills buffers with cryptographically strong random bytes.
type Source interface {
	Fill(p []byte) error
}

type systemSource struct{}

func (systemSource) Fill(p []byte) error {
	if _, err := io.ReadFull(rand.Reader, p); err != nil {
		return dtlserr.New(dtlserr.KindEntropy, "fill", err)
	}
	return nil
}

// System reads from crypto/rand.
var System Source = systemSource{}

// ReseedInterval is the number of Fill calls after which a DRBG pulls fresh
// seed material.
const ReseedInterval = 1 << 16

const seedSize = chacha20.KeySize

// DRBG is a deterministic random bit generator keyed from a seed Source.
// It is safe for concurrent use.
type DRBG struct {
	mu    sync.Mutex
	seed  Source
	pers  []byte
	key   [chacha20.KeySize]byte
	calls int
}

// NewDRBG seeds a generator from seed, binding it to personalization.
func NewDRBG(seed Source, personalization string) (*DRBG, error) {
	if seed == nil {
		seed = System
	}
	d := &DRBG{seed: seed, pers: []byte(personalization)}
	if err := d.Reseed(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reseed mixes fresh seed material into the generator key.
func (d *DRBG) Reseed() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reseedLocked()
}

func (d *DRBG) reseedLocked() error {
	var ikm [seedSize]byte
	if err := d.seed.Fill(ikm[:]); err != nil {
		return dtlserr.New(dtlserr.KindEntropy, "seed", err)
	}
	kdf := hkdf.New(sha256.New, append(ikm[:], d.key[:]...), nil, d.pers)
	if _, err := io.ReadFull(kdf, d.key[:]); err != nil {
		return dtlserr.New(dtlserr.KindEntropy, "seed", err)
	}
	clear(ikm[:])
	d.calls = 0
	return nil
}

// Fill writes len(p) random bytes to p and rekeys the generator.
func (d *DRBG) Fill(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.calls >= ReseedInterval {
		if err := d.reseedLocked(); err != nil {
			return err
		}
	}
	d.calls++

	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(d.key[:], nonce[:])
	if err != nil {
		return dtlserr.New(dtlserr.KindEntropy, "fill", errors.Wrap(err, "keystream"))
	}

	// The first block becomes the next key; the rest is output.
	var next [chacha20.KeySize]byte
	c.XORKeyStream(next[:], next[:])
	clear(p)
	c.XORKeyStream(p, p)
	d.key = next
	return nil
}

// Read implements io.Reader so a Source can feed crypto APIs.
func (d *DRBG) Read(p []byte) (int, error) {
	if err := d.Fill(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Reader adapts any Source to io.Reader.
func Reader(src Source) io.Reader { return sourceReader{src} }

type sourceReader struct{ src Source }

func (r sourceReader) Read(p []byte) (int, error) {
	if err := r.src.Fill(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
