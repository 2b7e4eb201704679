package session

import (
	"time"

	"github.com/Marz6759/goldy/pkg/entropy"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/timer"
	"github.com/Marz6759/goldy/pkg/transport"
	"github.com/Marz6759/goldy/pkg/trust"
	"github.com/Marz6759/goldy/pkg/verify"
	"github.com/Marz6759/goldy/pkg/wire"
)

// Defaults.
const (
	DefaultHandshakeTimeoutMin = timer.InitialInterval
	DefaultHandshakeTimeoutMax = timer.MaxInterval
	DefaultReadTimeout         = 2 * time.Second

	// closeTimeout bounds the close_notify send loop.
	closeTimeout = time.Second

	// maxBufferedMessages caps out-of-order handshake messages.
	maxBufferedMessages = 8
)

// Config holds the collaborators and timing of a Session.
// Zero fields take defaults.
type Config struct {
	// Dialer opens the transport. Defaults to transport.DialUDP.
	Dialer transport.Dialer

	// Random supplies hello randoms and key shares. Defaults to
	// entropy.System.
	Random entropy.Source

	// Clock drives the session timer. Defaults to timer.SystemClock.
	Clock timer.Clock

	// Logger receives protocol events. Defaults to log.NoopLogger.
	Logger log.Logger

	// HandshakeTimeoutMin is the first retransmission delay of a flight.
	HandshakeTimeoutMin time.Duration

	// HandshakeTimeoutMax caps the retransmission delay and is the final
	// deadline of each flight.
	HandshakeTimeoutMax time.Duration

	// ReadTimeout is the final deadline of a read operation.
	ReadTimeout time.Duration

	// MTU bounds application records: a write carries at most
	// MTU minus record overhead bytes. Defaults to wire.MaxDatagramSize.
	MTU int
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = transport.DialUDP
	}
	if c.Random == nil {
		c.Random = entropy.System
	}
	if c.Clock == nil {
		c.Clock = timer.SystemClock
	}
	c.Logger = log.OrNoop(c.Logger)
	if c.HandshakeTimeoutMin <= 0 {
		c.HandshakeTimeoutMin = DefaultHandshakeTimeoutMin
	}
	if c.HandshakeTimeoutMax <= 0 {
		c.HandshakeTimeoutMax = DefaultHandshakeTimeoutMax
	}
	if c.HandshakeTimeoutMax < c.HandshakeTimeoutMin {
		c.HandshakeTimeoutMax = c.HandshakeTimeoutMin
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MTU <= 0 || c.MTU > wire.MaxDatagramSize {
		c.MTU = wire.MaxDatagramSize
	}
	return c
}

// Settings is the verification setup applied by Configure.
type Settings struct {
	// Trust holds the anchors the peer chain is checked against.
	Trust *trust.Store

	// Strictness must be verify.Required or verify.Optional. The session
	// records it; the caller applies it through verify.Evaluate.
	Strictness verify.Strictness

	// ServerName is sent to the peer and matched against its
	// certificate.
	ServerName string
}
