package verify

import (
	"crypto/x509"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/trust"
)

// Options configures Check.
type Options struct {
	// Store holds the trust anchors. A nil store trusts nothing.
	Store *trust.Store

	// ServerName is matched against the leaf. Empty skips the check.
	ServerName string

	// Now defaults to time.Now().
	Now time.Time
}

// ParseChain parses a DER chain, leaf first.
func ParseChain(der [][]byte) ([]*x509.Certificate, error) {
	out := make([]*x509.Certificate, 0, len(der))
	for i, d := range der {
		c, err := x509.ParseCertificate(d)
		if err != nil {
			return nil, errors.Wrapf(err, "certificate %d", i)
		}
		out = append(out, c)
	}
	return out, nil
}

// Check computes the verification flags for chain.
func Check(chain []*x509.Certificate, opts Options) Flags {
	if len(chain) == 0 || chain[0] == nil {
		return Missing
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	leaf := chain[0]

	var f Flags
	for _, c := range chain {
		if now.Before(c.NotBefore) {
			f |= NotYetValid
		}
		if now.After(c.NotAfter) {
			f |= Expired
		}
		if opts.Store != nil && opts.Store.IsRevoked(c) {
			f |= Revoked
		}
	}

	if opts.ServerName != "" {
		if err := leaf.VerifyHostname(opts.ServerName); err != nil {
			f |= NameMismatch
		}
	}

	if !serverUsage(leaf) {
		f |= BadKeyUsage
	}

	f |= chainFlags(chain, opts.Store, now)
	return f
}

func serverUsage(leaf *x509.Certificate) bool {
	if leaf.KeyUsage != 0 && leaf.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return false
	}
	if len(leaf.ExtKeyUsage) == 0 {
		return true
	}
	return slices.Contains(leaf.ExtKeyUsage, x509.ExtKeyUsageServerAuth) ||
		slices.Contains(leaf.ExtKeyUsage, x509.ExtKeyUsageAny)
}

// chainFlags checks the signature path only. Validity periods are already
// reported, so the check runs at an instant inside the leaf's validity.
func chainFlags(chain []*x509.Certificate, store *trust.Store, now time.Time) Flags {
	if store == nil || store.Len() == 0 {
		return NotTrusted
	}
	leaf := chain[0]
	at := now
	if at.Before(leaf.NotBefore) {
		at = leaf.NotBefore
	}
	if at.After(leaf.NotAfter) {
		at = leaf.NotAfter
	}

	inter := x509.NewCertPool()
	for _, c := range chain[1:] {
		inter.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         store.Pool(),
		Intermediates: inter,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err == nil {
		return 0
	}

	var (
		unknown  x509.UnknownAuthorityError
		invalid  x509.CertificateInvalidError
		hostname x509.HostnameError
	)
	switch {
	case errors.As(err, &unknown):
		return NotTrusted
	case errors.As(err, &invalid):
		switch invalid.Reason {
		case x509.Expired:
			// An intermediate outside its validity window.
			return Expired
		case x509.IncompatibleUsage:
			return BadKeyUsage
		case x509.NotAuthorizedToSign, x509.CANotAuthorizedForThisName, x509.TooManyIntermediates:
			return NotTrusted
		default:
			return Other
		}
	case errors.As(err, &hostname):
		return NameMismatch
	default:
		return Other
	}
}
