package suite

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/pion/dtls/v2/pkg/crypto/prf"
	"github.com/pkg/errors"
)

// Transcript accumulates the handshake messages covered by Finished.
// Messages are added whole, with their handshake header.
type Transcript struct {
	buf []byte
}

// Add appends an encoded handshake message.
func (t *Transcript) Add(msg []byte) {
	t.buf = append(t.buf, msg...)
}

// Bytes returns everything added so far.
func (t *Transcript) Bytes() []byte { return t.buf }

// Sum returns the SHA-256 of everything added so far, the session hash
// of the extended master secret.
func (t *Transcript) Sum() []byte {
	h := sha256.Sum256(t.buf)
	return h[:]
}

// Reset empties the transcript.
func (t *Transcript) Reset() {
	Zero(t.buf)
	t.buf = t.buf[:0]
}

// Keys is the key material of a negotiated session.
type Keys struct {
	Suite *Suite
	enc   *prf.EncryptionKeys
}

// DeriveKeys runs the key schedule for s. A non-nil sessionHash selects
// the extended master secret (RFC 7627).
func DeriveKeys(s *Suite, preMaster, clientRandom, serverRandom, sessionHash []byte) (*Keys, error) {
	var (
		master []byte
		err    error
	)
	if sessionHash != nil {
		master, err = prf.ExtendedMasterSecret(preMaster, sessionHash, sha256.New)
	} else {
		master, err = prf.MasterSecret(preMaster, clientRandom, serverRandom, sha256.New)
	}
	if err != nil {
		return nil, errors.Wrap(err, "master secret")
	}
	// enc keeps master as its MasterSecret; Zero wipes both.
	enc, err := prf.GenerateEncryptionKeys(master, clientRandom, serverRandom, 0, s.KeyLen, s.IVLen, sha256.New)
	if err != nil {
		return nil, errors.Wrap(err, "key expansion")
	}
	return &Keys{Suite: s, enc: enc}, nil
}

// Cipher returns the record cipher for one side of the session.
func (k *Keys) Cipher(client bool) (RecordCipher, error) {
	e := k.enc
	if client {
		return k.Suite.newCipher(e.ClientWriteKey, e.ClientWriteIV, e.ServerWriteKey, e.ServerWriteIV)
	}
	return k.Suite.newCipher(e.ServerWriteKey, e.ServerWriteIV, e.ClientWriteKey, e.ClientWriteIV)
}

// ClientFinished computes the client verify_data over transcript.
func (k *Keys) ClientFinished(transcript []byte) ([]byte, error) {
	return prf.VerifyDataClient(k.enc.MasterSecret, transcript, sha256.New)
}

// ServerFinished computes the server verify_data over transcript.
func (k *Keys) ServerFinished(transcript []byte) ([]byte, error) {
	return prf.VerifyDataServer(k.enc.MasterSecret, transcript, sha256.New)
}

// ErrBadFinished reports a Finished message that does not match.
var ErrBadFinished = errors.New("finished verify data mismatch")

// VerifyFinished compares verify_data in constant time.
func VerifyFinished(want, got []byte) error {
	if !hmac.Equal(want, got) {
		return ErrBadFinished
	}
	return nil
}

// Zero wipes all key material.
func (k *Keys) Zero() {
	if k == nil || k.enc == nil {
		return
	}
	for _, b := range [][]byte{
		k.enc.MasterSecret, k.enc.ClientMACKey, k.enc.ServerMACKey,
		k.enc.ClientWriteKey, k.enc.ServerWriteKey, k.enc.ClientWriteIV, k.enc.ServerWriteIV,
	} {
		Zero(b)
	}
}
