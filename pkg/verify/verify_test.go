package verify

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marz6759/goldy/internal/dtlstest"
	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/trust"
)

func TestFlagsRendering(t *testing.T) {
	assert.Equal(t, "ok", Flags(0).String())

	f := NotTrusted | NameMismatch
	assert.Equal(t, "not-trusted|name-mismatch", f.String())
	assert.True(t, f.Has(NameMismatch))
	assert.False(t, f.Has(Expired))
	assert.Equal(t,
		"! The certificate is not correctly signed by the trusted CA\n"+
			"! The certificate name does not match the expected server name\n",
		f.Info("! "))
	assert.Empty(t, Flags(0).Info("! "))
}

func TestEvaluate(t *testing.T) {
	for _, tc := range []struct {
		name       string
		flags      Flags
		strictness Strictness
		accept     bool
		diagnostic bool
	}{
		{"clean required", 0, Required, true, false},
		{"clean optional", 0, Optional, true, false},
		{"failed required", NotTrusted, Required, false, false},
		{"failed optional", NotTrusted | Expired, Optional, true, true},
		{"failed unset", Missing, Unset, false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.flags, tc.strictness)
			assert.Equal(t, tc.accept, d.Accept)
			assert.Equal(t, tc.diagnostic, d.Diagnostic != "")
			if tc.accept {
				assert.NoError(t, d.Err())
			} else {
				assert.True(t, errors.Is(d.Err(), dtlserr.ErrUntrustedPeer))
			}
			assert.Equal(t, d, Evaluate(tc.flags, tc.strictness), "pure")
		})
	}
}

func TestParseStrictness(t *testing.T) {
	s, err := ParseStrictness("Required")
	require.NoError(t, err)
	assert.Equal(t, Required, s)
	s, err = ParseStrictness(" optional ")
	require.NoError(t, err)
	assert.Equal(t, Optional, s)
	_, err = ParseStrictness("none")
	assert.Error(t, err)
	assert.False(t, Unset.Valid())
}

func TestCheck(t *testing.T) {
	ca, err := dtlstest.NewCA("check root")
	require.NoError(t, err)
	stranger, err := dtlstest.NewCA("stranger")
	require.NoError(t, err)

	store := trust.NewStore()
	store.AddCert(ca.Cert)

	issue := func(ca *dtlstest.CA, opts dtlstest.LeafOptions) []*x509.Certificate {
		t.Helper()
		id, err := ca.Issue(opts)
		require.NoError(t, err)
		chain, err := ParseChain(id.Chain)
		require.NoError(t, err)
		return chain
	}
	now := time.Now()

	revoked := issue(ca, dtlstest.LeafOptions{})
	store.Revoke(revoked[0].SerialNumber)

	for _, tc := range []struct {
		name   string
		chain  []*x509.Certificate
		opts   Options
		expect Flags
	}{
		{"valid", issue(ca, dtlstest.LeafOptions{}), Options{Store: store, ServerName: "localhost"}, 0},
		{"valid with CA in chain", issue(ca, dtlstest.LeafOptions{WithCA: true}), Options{Store: store, ServerName: "localhost"}, 0},
		{"ed25519 leaf", issue(ca, dtlstest.LeafOptions{Ed25519: true}), Options{Store: store}, 0},
		{"unknown issuer", issue(stranger, dtlstest.LeafOptions{}), Options{Store: store}, NotTrusted},
		{"no store", issue(ca, dtlstest.LeafOptions{}), Options{}, NotTrusted},
		{"name mismatch", issue(ca, dtlstest.LeafOptions{}), Options{Store: store, ServerName: "example.org"}, NameMismatch},
		{"expired", issue(ca, dtlstest.LeafOptions{NotBefore: now.Add(-3 * time.Hour), NotAfter: now.Add(-2 * time.Hour)}), Options{Store: store}, Expired},
		{"not yet valid", issue(ca, dtlstest.LeafOptions{NotBefore: now.Add(2 * time.Hour), NotAfter: now.Add(3 * time.Hour)}), Options{Store: store}, NotYetValid},
		{"client only", issue(ca, dtlstest.LeafOptions{ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}}), Options{Store: store}, BadKeyUsage},
		{"revoked", revoked, Options{Store: store}, Revoked},
		{"missing", nil, Options{Store: store}, Missing},
		{"combined", issue(stranger, dtlstest.LeafOptions{DNSNames: []string{"other"}}), Options{Store: store, ServerName: "localhost"}, NotTrusted | NameMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Check(tc.chain, tc.opts), Check(tc.chain, tc.opts).String())
		})
	}
}

func TestParseChainError(t *testing.T) {
	_, err := ParseChain([][]byte{{0x30, 0x00}})
	assert.Error(t, err)
}
