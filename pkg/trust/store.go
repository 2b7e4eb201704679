package trust

import (
	"crypto/x509"
	"embed"
	"encoding/pem"
	"io/fs"
	"math/big"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

//go:embed bundle/*.pem
var bundleFS embed.FS

// Store errors.
var (
	ErrNoCertificates = errors.New("no certificates found")
	ErrCRLSignature   = errors.New("CRL not signed by a trusted certificate")
)

// Store is a set of trust anchors plus revoked serial numbers.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	pool    *x509.CertPool
	certs   []*x509.Certificate
	revoked map[string]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		pool:    x509.NewCertPool(),
		revoked: make(map[string]struct{}),
	}
}

// LoadResult reports the outcome of adding PEM data.
type LoadResult struct {
	Added   int
	Skipped int
}

// LoadEmbedded returns a store holding the compiled-in bundle.
func LoadEmbedded() (*Store, LoadResult, error) {
	s := NewStore()
	var total LoadResult
	err := fs.WalkDir(bundleFS, "bundle", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := bundleFS.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		r := s.AddPEM(data)
		total.Added += r.Added
		total.Skipped += r.Skipped
		return nil
	})
	if err != nil {
		return nil, total, err
	}
	return s, total, nil
}

// AddCert adds a parsed anchor.
func (s *Store) AddCert(c *x509.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.AddCert(c)
	s.certs = append(s.certs, c)
}

// AddPEM adds every CERTIFICATE block in data. Blocks of another type or
// that do not parse are counted as skipped.
func (s *Store) AddPEM(data []byte) LoadResult {
	var r LoadResult
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return r
		}
		if block.Type != "CERTIFICATE" {
			r.Skipped++
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			r.Skipped++
			continue
		}
		s.AddCert(c)
		r.Added++
	}
}

// AddFile adds the anchors in a PEM file. A file without a single usable
// certificate is an error.
func (s *Store) AddFile(path string) (LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadResult{}, errors.Wrap(err, "read CA file")
	}
	r := s.AddPEM(data)
	if r.Added == 0 {
		return r, errors.Wrapf(ErrNoCertificates, "%s", path)
	}
	return r, nil
}

// AddCRL records the serials revoked by a DER or PEM encoded CRL. The CRL
// must be signed by one of the store's anchors.
func (s *Store) AddCRL(data []byte) (int, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return 0, errors.Wrap(err, "parse CRL")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var signed bool
	for _, c := range s.certs {
		if crl.CheckSignatureFrom(c) == nil {
			signed = true
			break
		}
	}
	if !signed {
		return 0, ErrCRLSignature
	}
	for _, e := range crl.RevokedCertificateEntries {
		s.revoked[serialKey(e.SerialNumber)] = struct{}{}
	}
	return len(crl.RevokedCertificateEntries), nil
}

// Revoke marks a serial number as revoked.
func (s *Store) Revoke(serial *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[serialKey(serial)] = struct{}{}
}

// IsRevoked reports whether c's serial number has been revoked.
func (s *Store) IsRevoked(c *x509.Certificate) bool {
	if c == nil || c.SerialNumber == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[serialKey(c.SerialNumber)]
	return ok
}

// Pool returns the anchors as a certificate pool.
func (s *Store) Pool() *x509.CertPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool.Clone()
}

// Len returns the number of anchors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs)
}

// Subjects returns the anchor subjects, sorted.
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.certs))
	for _, c := range s.certs {
		out = append(out, c.Subject.String())
	}
	sort.Strings(out)
	return out
}

func serialKey(n *big.Int) string {
	return n.Text(16)
}
