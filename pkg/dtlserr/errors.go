package dtlserr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the error class reported for a failed session step.
type Kind int

// Kind values double as the numeric codes printed by the client.
const (
	KindUnknown          Kind = 0
	KindTransport        Kind = 10
	KindHandshakeTimeout Kind = 20
	KindHandshakeFailure Kind = 21
	KindUntrustedPeer    Kind = 30
	KindReadTimeout      Kind = 40
	KindNoResponse       Kind = 41
	KindPeerClosed       Kind = 42
	KindSessionClosed    Kind = 50
	KindBufferTooSmall   Kind = 51
	KindIO               Kind = 60
	KindEntropy          Kind = 70
	KindNotConfigured    Kind = 80
	KindConfig           Kind = 81
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport error"
	case KindHandshakeTimeout:
		return "handshake timeout"
	case KindHandshakeFailure:
		return "handshake failure"
	case KindUntrustedPeer:
		return "untrusted peer"
	case KindReadTimeout:
		return "read timeout"
	case KindNoResponse:
		return "no response"
	case KindPeerClosed:
		return "peer closed"
	case KindSessionClosed:
		return "session closed"
	case KindBufferTooSmall:
		return "buffer too small"
	case KindIO:
		return "i/o error"
	case KindEntropy:
		return "entropy error"
	case KindNotConfigured:
		return "not configured"
	case KindConfig:
		return "configuration error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Code returns the numeric code for k.
func (k Kind) Code() int { return int(k) }

// Fatal reports whether an error of this kind must end the session.
func (k Kind) Fatal() bool {
	switch k {
	case KindReadTimeout, KindBufferTooSmall, KindPeerClosed:
		return false
	default:
		return true
	}
}

// Error is a classified error carrying the step that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel values (no Op, no cause) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors, one per kind.
var (
	ErrTransport        = &Error{Kind: KindTransport}
	ErrHandshakeTimeout = &Error{Kind: KindHandshakeTimeout}
	ErrHandshakeFailure = &Error{Kind: KindHandshakeFailure}
	ErrUntrustedPeer    = &Error{Kind: KindUntrustedPeer}
	ErrReadTimeout      = &Error{Kind: KindReadTimeout}
	ErrNoResponse       = &Error{Kind: KindNoResponse}
	ErrPeerClosed       = &Error{Kind: KindPeerClosed}
	ErrSessionClosed    = &Error{Kind: KindSessionClosed}
	ErrBufferTooSmall   = &Error{Kind: KindBufferTooSmall}
	ErrIO               = &Error{Kind: KindIO}
	ErrEntropy          = &Error{Kind: KindEntropy}
	ErrNotConfigured    = &Error{Kind: KindNotConfigured}
	ErrConfig           = &Error{Kind: KindConfig}
)

// New returns an *Error of kind k for step op with cause err.
func New(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(k Kind, op, format string, args ...any) error {
	return &Error{Kind: k, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Code returns the numeric code of err, 0 for nil, -1 for unclassified errors.
func Code(err error) int {
	if err == nil {
		return 0
	}
	if k := KindOf(err); k != KindUnknown {
		return k.Code()
	}
	return -1
}

// Step returns the Op of the outermost *Error in err's chain.
func Step(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}
