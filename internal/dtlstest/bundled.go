package dtlstest

import (
	"crypto/x509"
	_ "embed"
	"encoding/pem"
	"fmt"
)

var (
	//go:embed testdata/test-ca.pem
	bundledCert []byte
	//go:embed testdata/test-ca-key.pem
	bundledKey []byte
)

// BundledCA returns the test root shipped in the client's compiled-in
// trust bundle, with its key, so tests can issue leaves the client trusts
// without a CA file.
func BundledCA() (*CA, error) {
	cb, _ := pem.Decode(bundledCert)
	if cb == nil {
		return nil, fmt.Errorf("bundled CA: no certificate")
	}
	cert, err := x509.ParseCertificate(cb.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bundled CA: %w", err)
	}
	kb, _ := pem.Decode(bundledKey)
	if kb == nil {
		return nil, fmt.Errorf("bundled CA: no key")
	}
	key, err := x509.ParseECPrivateKey(kb.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bundled CA key: %w", err)
	}
	return &CA{Cert: cert, Key: key}, nil
}
