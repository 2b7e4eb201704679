package verify

import (
	"strings"
)

// Flags is a bitfield of certificate verification failures.
// Zero means the chain verified.
type Flags uint32

// Failure reasons.
const (
	NotTrusted Flags = 1 << iota
	Expired
	NotYetValid
	NameMismatch
	Revoked
	Missing
	BadKeyUsage
	Other
)

var reasons = []struct {
	flag Flags
	name string
	text string
}{
	{NotTrusted, "not-trusted", "The certificate is not correctly signed by the trusted CA"},
	{Expired, "expired", "The certificate validity has expired"},
	{NotYetValid, "not-yet-valid", "The certificate validity starts in the future"},
	{NameMismatch, "name-mismatch", "The certificate name does not match the expected server name"},
	{Revoked, "revoked", "The certificate has been revoked (is on a CRL)"},
	{Missing, "missing", "Certificate was missing"},
	{BadKeyUsage, "bad-key-usage", "Usage does not match the keyUsage extension"},
	{Other, "other", "Other reason"},
}

// Has reports whether all bits of r are set.
func (f Flags) Has(r Flags) bool { return f&r == r }

// OK reports whether no failure was recorded.
func (f Flags) OK() bool { return f == 0 }

// Names returns the short name of each reason set.
func (f Flags) Names() []string {
	var out []string
	for _, r := range reasons {
		if f&r.flag != 0 {
			out = append(out, r.name)
		}
	}
	return out
}

func (f Flags) String() string {
	if f == 0 {
		return "ok"
	}
	return strings.Join(f.Names(), "|")
}

// Info renders one human-readable line per reason, each starting with
// prefix.
func (f Flags) Info(prefix string) string {
	var b strings.Builder
	for _, r := range reasons {
		if f&r.flag != 0 {
			b.WriteString(prefix)
			b.WriteString(r.text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
