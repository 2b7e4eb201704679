package suite

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/recordlayer"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const seqMask = 1<<48 - 1

// ErrDecrypt reports a record that failed authentication.
var ErrDecrypt = errors.New("record authentication failed")

// RecordCipher protects the records of both directions of a session.
// Encrypt takes a marshalled record and returns it protected; Decrypt
// takes a protected record and returns its header followed by the
// plaintext, reusing in.
type RecordCipher interface {
	Encrypt(pkt *recordlayer.RecordLayer, raw []byte) ([]byte, error)
	Decrypt(in []byte) ([]byte, error)
}

// chachaCipher is ChaCha20-Poly1305 record protection per RFC 7905: no
// explicit nonce, the write IV XOR the padded epoch and sequence.
type chachaCipher struct {
	local, remote     cipher.AEAD
	localIV, remoteIV [chacha20poly1305.NonceSize]byte
}

func newChaCha(localKey, localIV, remoteKey, remoteIV []byte) (RecordCipher, error) {
	if len(localIV) != chacha20poly1305.NonceSize || len(remoteIV) != chacha20poly1305.NonceSize {
		return nil, errors.New("chacha20-poly1305: bad iv length")
	}
	local, err := chacha20poly1305.New(localKey)
	if err != nil {
		return nil, errors.Wrap(err, "chacha20-poly1305")
	}
	remote, err := chacha20poly1305.New(remoteKey)
	if err != nil {
		return nil, errors.Wrap(err, "chacha20-poly1305")
	}
	c := &chachaCipher{local: local, remote: remote}
	copy(c.localIV[:], localIV)
	copy(c.remoteIV[:], remoteIV)
	return c, nil
}

func chachaNonce(iv [chacha20poly1305.NonceSize]byte, h *recordlayer.Header) []byte {
	var es [8]byte
	binary.BigEndian.PutUint64(es[:], uint64(h.Epoch)<<48|h.SequenceNumber&seqMask)
	for i := range es {
		iv[len(iv)-8+i] ^= es[i]
	}
	return iv[:]
}

// additionalData is seq_num(8) type(1) version(2) length(2).
func additionalData(h *recordlayer.Header, length int) []byte {
	var ad [13]byte
	binary.BigEndian.PutUint64(ad[:8], uint64(h.Epoch)<<48|h.SequenceNumber&seqMask)
	ad[8] = byte(h.ContentType)
	ad[9] = h.Version.Major
	ad[10] = h.Version.Minor
	binary.BigEndian.PutUint16(ad[11:], uint16(length))
	return ad[:]
}

func (c *chachaCipher) Encrypt(pkt *recordlayer.RecordLayer, raw []byte) ([]byte, error) {
	if len(raw) < recordlayer.HeaderSize {
		return nil, errors.New("chacha20-poly1305: short record")
	}
	payload := raw[recordlayer.HeaderSize:]
	out := make([]byte, recordlayer.HeaderSize, recordlayer.HeaderSize+len(payload)+chacha20poly1305.Overhead)
	copy(out, raw)
	out = c.local.Seal(out, chachaNonce(c.localIV, &pkt.Header), payload, additionalData(&pkt.Header, len(payload)))
	binary.BigEndian.PutUint16(out[recordlayer.HeaderSize-2:], uint16(len(out)-recordlayer.HeaderSize))
	return out, nil
}

func (c *chachaCipher) Decrypt(in []byte) ([]byte, error) {
	var h recordlayer.Header
	if err := h.Unmarshal(in); err != nil {
		return nil, err
	}
	if h.ContentType == protocol.ContentTypeChangeCipherSpec {
		return in, nil
	}
	body := in[recordlayer.HeaderSize:]
	if len(body) < chacha20poly1305.Overhead {
		return nil, ErrDecrypt
	}
	pt, err := c.remote.Open(body[:0], chachaNonce(c.remoteIV, &h), body, additionalData(&h, len(body)-chacha20poly1305.Overhead))
	if err != nil {
		return nil, ErrDecrypt
	}
	return in[:recordlayer.HeaderSize+len(pt)], nil
}
