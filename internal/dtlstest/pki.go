package dtlstest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// CA is a throwaway certificate authority.
type CA struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// Identity is a server certificate chain with its private key.
type Identity struct {
	Chain [][]byte // leaf first, DER
	Leaf  *x509.Certificate
	Key   crypto.Signer
}

// LeafOptions tweaks a generated server certificate.
type LeafOptions struct {
	// DNSNames defaults to "localhost".
	DNSNames []string

	NotBefore time.Time
	NotAfter  time.Time

	// ExtKeyUsage defaults to server auth.
	ExtKeyUsage []x509.ExtKeyUsage

	// Ed25519 selects an Ed25519 leaf key instead of P-256.
	Ed25519 bool

	// RSA selects a 2048-bit RSA leaf key instead of P-256.
	RSA bool

	// WithCA appends the CA certificate to the chain.
	WithCA bool
}

func serial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// NewCA generates a self-signed P-256 root.
func NewCA(name string) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	sn, err := serial()
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          sn,
		Subject:               pkix.Name{CommonName: name, Organization: []string{"goldy test"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return &CA{Cert: c, Key: key}, nil
}

// Issue signs a server certificate.
func (ca *CA) Issue(opts LeafOptions) (*Identity, error) {
	var (
		signer crypto.Signer
		err    error
	)
	switch {
	case opts.Ed25519:
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	case opts.RSA:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	sn, err := serial()
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	if opts.DNSNames == nil {
		opts.DNSNames = []string{"localhost"}
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = now.Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = now.Add(12 * time.Hour)
	}
	if opts.ExtKeyUsage == nil {
		opts.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	}

	template := &x509.Certificate{
		SerialNumber:          sn,
		Subject:               pkix.Name{CommonName: opts.DNSNames[0]},
		DNSNames:              opts.DNSNames,
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           opts.ExtKeyUsage,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, signer.Public(), ca.Key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	id := &Identity{Chain: [][]byte{der}, Leaf: leaf, Key: signer}
	if opts.WithCA {
		id.Chain = append(id.Chain, ca.Cert.Raw)
	}
	return id, nil
}

// CRL returns a PEM CRL revoking the given serials, signed by ca.
func (ca *CA) CRL(serials ...*big.Int) ([]byte, error) {
	entries := make([]x509.RevocationListEntry, 0, len(serials))
	for _, sn := range serials {
		entries = append(entries, x509.RevocationListEntry{SerialNumber: sn, RevocationTime: time.Now()})
	}
	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now().Add(-time.Minute),
		NextUpdate:                time.Now().Add(time.Hour),
		RevokedCertificateEntries: entries,
	}, ca.Cert, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("create CRL: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der}), nil
}

// PEM returns the CA certificate in PEM form.
func (ca *CA) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.Cert.Raw})
}
