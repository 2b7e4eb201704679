package suite

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"io"

	"github.com/pion/dtls/v2/pkg/crypto/hash"
	"github.com/pion/dtls/v2/pkg/crypto/signature"
	"github.com/pion/dtls/v2/pkg/crypto/signaturehash"
	"github.com/pkg/errors"
)

// SignatureAlgorithms lists the algorithms a client accepts on
// ServerKeyExchange, in preference order.
var SignatureAlgorithms = []signaturehash.Algorithm{
	{Hash: hash.SHA256, Signature: signature.ECDSA},
	{Hash: hash.SHA384, Signature: signature.ECDSA},
	{Hash: hash.Ed25519, Signature: signature.Ed25519},
	{Hash: hash.SHA256, Signature: signature.RSA},
	{Hash: hash.SHA384, Signature: signature.RSA},
}

// ErrBadSignature reports a ServerKeyExchange that does not verify.
var ErrBadSignature = errors.New("server key exchange signature invalid")

// signedParams is client_random || server_random || params.
func signedParams(clientRandom, serverRandom, params []byte) []byte {
	b := make([]byte, 0, len(clientRandom)+len(serverRandom)+len(params))
	b = append(b, clientRandom...)
	b = append(b, serverRandom...)
	return append(b, params...)
}

// AuthOf returns the suite authentication family matching a public key.
func AuthOf(pub crypto.PublicKey) (Auth, error) {
	switch pub.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey:
		return AuthECDSA, nil
	case *rsa.PublicKey:
		return AuthRSA, nil
	default:
		return 0, errors.Errorf("unsupported key type %T", pub)
	}
}

// algorithmFor picks the signature algorithm a signer uses.
func algorithmFor(pub crypto.PublicKey) (signaturehash.Algorithm, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P384() {
			return signaturehash.Algorithm{Hash: hash.SHA384, Signature: signature.ECDSA}, nil
		}
		return signaturehash.Algorithm{Hash: hash.SHA256, Signature: signature.ECDSA}, nil
	case ed25519.PublicKey:
		return signaturehash.Algorithm{Hash: hash.Ed25519, Signature: signature.Ed25519}, nil
	case *rsa.PublicKey:
		return signaturehash.Algorithm{Hash: hash.SHA256, Signature: signature.RSA}, nil
	default:
		return signaturehash.Algorithm{}, errors.Errorf("unsupported key type %T", pub)
	}
}

func digest(h hash.Algorithm, msg []byte) (crypto.Hash, []byte, error) {
	var ch crypto.Hash
	switch h {
	case hash.SHA256:
		ch = crypto.SHA256
	case hash.SHA384:
		ch = crypto.SHA384
	default:
		return 0, nil, errors.Wrapf(ErrBadSignature, "hash %d not accepted", uint16(h))
	}
	d := ch.New()
	d.Write(msg)
	return ch, d.Sum(nil), nil
}

// SignKeyExchange signs the ECDH params of a ServerKeyExchange.
func SignKeyExchange(rand io.Reader, signer crypto.Signer, clientRandom, serverRandom, params []byte) (signaturehash.Algorithm, []byte, error) {
	alg, err := algorithmFor(signer.Public())
	if err != nil {
		return alg, nil, err
	}
	msg := signedParams(clientRandom, serverRandom, params)

	var sig []byte
	if alg.Signature == signature.Ed25519 {
		sig, err = signer.Sign(rand, msg, crypto.Hash(0))
	} else {
		ch, d, derr := digest(alg.Hash, msg)
		if derr != nil {
			return alg, nil, derr
		}
		sig, err = signer.Sign(rand, d, ch)
	}
	if err != nil {
		return alg, nil, errors.Wrap(err, "sign")
	}
	return alg, sig, nil
}

// VerifyKeyExchange checks a ServerKeyExchange signature made with pub.
func VerifyKeyExchange(pub crypto.PublicKey, alg signaturehash.Algorithm, clientRandom, serverRandom, params, sig []byte) error {
	if !acceptedAlgorithm(alg) {
		return errors.Wrapf(ErrBadSignature, "algorithm %d/%d not offered", uint16(alg.Hash), uint16(alg.Signature))
	}
	msg := signedParams(clientRandom, serverRandom, params)

	switch k := pub.(type) {
	case ed25519.PublicKey:
		if alg.Signature != signature.Ed25519 {
			break
		}
		if !ed25519.Verify(k, msg, sig) {
			return ErrBadSignature
		}
		return nil
	case *ecdsa.PublicKey:
		if alg.Signature != signature.ECDSA {
			break
		}
		_, d, err := digest(alg.Hash, msg)
		if err != nil {
			return err
		}
		if !ecdsa.VerifyASN1(k, d, sig) {
			return ErrBadSignature
		}
		return nil
	case *rsa.PublicKey:
		if alg.Signature != signature.RSA {
			break
		}
		ch, d, err := digest(alg.Hash, msg)
		if err != nil {
			return err
		}
		if err := rsa.VerifyPKCS1v15(k, ch, d, sig); err != nil {
			return ErrBadSignature
		}
		return nil
	default:
		return errors.Errorf("unsupported key type %T", pub)
	}
	return errors.Wrapf(ErrBadSignature, "signature algorithm %d for %T key", uint16(alg.Signature), pub)
}

func acceptedAlgorithm(alg signaturehash.Algorithm) bool {
	for _, a := range SignatureAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}
