package verify

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/dtlserr"
)

// Strictness selects what happens when verification fails.
type Strictness int

// Strictness values. The zero value is deliberately invalid so callers
// must choose.
const (
	Unset Strictness = iota
	Required
	Optional
)

func (s Strictness) String() string {
	switch s {
	case Required:
		return "required"
	case Optional:
		return "optional"
	default:
		return "unset"
	}
}

// Valid reports whether s is Required or Optional.
func (s Strictness) Valid() bool { return s == Required || s == Optional }

// ParseStrictness parses "required" or "optional".
func ParseStrictness(v string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "required":
		return Required, nil
	case "optional":
		return Optional, nil
	default:
		return Unset, errors.Errorf("invalid auth mode %q (want required or optional)", v)
	}
}

// Decision is the outcome of applying a Strictness to Flags.
type Decision struct {
	Accept bool
	Flags  Flags
	// Diagnostic is non-empty when the peer was accepted despite failures.
	Diagnostic string
}

// Evaluate applies strictness to flags. Unset fails closed, like Required.
func Evaluate(flags Flags, strictness Strictness) Decision {
	if flags.OK() {
		return Decision{Accept: true}
	}
	if strictness == Optional {
		return Decision{
			Accept:     true,
			Flags:      flags,
			Diagnostic: fmt.Sprintf("peer accepted with verification failures: %s", flags),
		}
	}
	return Decision{Flags: flags}
}

// Err returns nil for an accepted peer and an UntrustedPeer error otherwise.
func (d Decision) Err() error {
	if d.Accept {
		return nil
	}
	return dtlserr.Newf(dtlserr.KindUntrustedPeer, "verify", "%s", d.Flags)
}
