// Package suite holds the cryptographic pieces of a DTLS 1.2 session:
// the cipher suites offered, ECDHE key shares, ServerKeyExchange
// signatures, the PRF key schedule and Finished values, record
// protection and the anti-replay window.
//
// The PRF and AES-GCM record protection come from
// github.com/pion/dtls/v2/pkg/crypto. ChaCha20-Poly1305 record protection
// (RFC 7905) and X25519 come from golang.org/x/crypto.
package suite
