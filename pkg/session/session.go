package session

import (
	"context"
	"crypto/x509"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/entropy"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/suite"
	"github.com/Marz6759/goldy/pkg/timer"
	"github.com/Marz6759/goldy/pkg/transport"
	"github.com/Marz6759/goldy/pkg/verify"
	"github.com/Marz6759/goldy/pkg/wire"
)

// recvBufferSize bounds an inbound datagram. Servers may send up to the
// path MTU, which is not known here.
const recvBufferSize = 64 * 1024

// Session is one client session.
//
// Every method takes the session lock for the duration of one step, so
// Release may be called from another goroutine while a driving loop such
// as Handshake or Read is running: it waits for the step in progress,
// which never blocks longer than maxStepWait, and the loop's next step
// reports the session closed. Steps from several goroutines are
// serialized but interleave; drive a session from one goroutine.
type Session struct {
	cfg    Config
	id     string
	state  State
	err    error
	tr     transport.Transport
	remote string

	settings   Settings
	configured bool

	rand    io.Reader
	timer   *timer.Timer
	backoff *timer.Backoff
	logger  log.Logger

	hs          *hsState
	keys        *suite.Keys
	cipher      suite.RecordCipher
	overhead    int
	replay      suite.ReplayWindow
	seq         [2]uint64
	established bool

	// flight is the last flight sent. It is retransmitted until the
	// server's next flight arrives.
	flight []flightRecord

	// outbox holds a datagram the transport refused with would-block.
	// outboxApp is the application byte count it carries, or -1.
	outbox    []byte
	outboxApp int

	chain []*x509.Certificate
	flags verify.Flags

	inbox      [][]byte
	peerClosed bool
	reading    bool
	closeSent  bool
	buf        []byte

	// op serializes steps with each other and with Release.
	op sync.Mutex
	// mu guards state for State, which does not wait for a step.
	mu          sync.Mutex
	releaseOnce sync.Once
	releaseErr  error
}

// New returns an idle session.
func New(cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:    cfg,
		id:     uuid.NewString(),
		rand:   entropy.Reader(cfg.Random),
		timer:  timer.New(cfg.Clock),
		logger: cfg.Logger,
		backoff: timer.NewBackoffWithConfig(timer.BackoffConfig{
			Initial: cfg.HandshakeTimeoutMin,
			Max:     cfg.HandshakeTimeoutMax,
		}),
		overhead:  suite.MaxOverhead,
		outboxApp: -1,
		buf:       make([]byte, recvBufferSize),
	}
}

// ConnectionID returns the UUID identifying this session in logs.
func (s *Session) ConnectionID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteAddr returns host:port of the peer once connected.
func (s *Session) RemoteAddr() string {
	s.op.Lock()
	defer s.op.Unlock()
	return s.remote
}

// Settings returns the configured verification settings.
func (s *Session) Settings() Settings {
	s.op.Lock()
	defer s.op.Unlock()
	return s.settings
}

// Suite returns the negotiated cipher suite, or nil before the server
// chose one.
func (s *Session) Suite() *suite.Suite {
	s.op.Lock()
	defer s.op.Unlock()
	if s.keys == nil {
		return nil
	}
	return s.keys.Suite
}

// MaxFragment is the largest payload a single write accepts. Before the
// suite is negotiated it assumes the largest record overhead.
func (s *Session) MaxFragment() int {
	s.op.Lock()
	defer s.op.Unlock()
	return s.maxFragment()
}

func (s *Session) maxFragment() int {
	return s.cfg.MTU - wire.RecordHeaderLen - s.overhead
}

// Connect opens the transport to host:port. On failure the session stays
// Idle.
func (s *Session) Connect(ctx context.Context, host, port string) error {
	s.op.Lock()
	defer s.op.Unlock()
	if st := s.State(); st != StateIdle || s.tr != nil {
		return dtlserr.Newf(dtlserr.KindTransport, "connect", "session already connected (%s)", st)
	}
	tr, err := s.cfg.Dialer(ctx, host, port)
	if err != nil {
		err = dtlserr.New(dtlserr.KindTransport, "connect", err)
		s.logError("connect", err)
		return err
	}
	s.tr = tr
	s.remote = host + ":" + port
	s.emit(log.Event{
		Layer:       log.LayerSession,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{OldState: StateIdle.String(), NewState: StateIdle.String(), Reason: "transport connected"},
	})
	return nil
}

// Configure records the verification settings. It must precede the
// handshake and requires an explicit strictness.
func (s *Session) Configure(st Settings) error {
	s.op.Lock()
	defer s.op.Unlock()
	if s.State() != StateIdle {
		return dtlserr.Newf(dtlserr.KindNotConfigured, "configure", "session is %s", s.State())
	}
	if !st.Strictness.Valid() {
		return dtlserr.Newf(dtlserr.KindNotConfigured, "configure", "strictness must be required or optional")
	}
	s.settings = st
	s.configured = true
	return nil
}

// VerifyResult returns the verification flags computed when the handshake
// completed. It never repeats the certificate checks.
func (s *Session) VerifyResult() (verify.Flags, error) {
	s.op.Lock()
	defer s.op.Unlock()
	if !s.established {
		return 0, dtlserr.Newf(dtlserr.KindSessionClosed, "verify", "handshake not complete")
	}
	return s.flags, nil
}

// PeerCertificates returns the parsed peer chain, leaf first.
func (s *Session) PeerCertificates() []*x509.Certificate {
	s.op.Lock()
	defer s.op.Unlock()
	return s.chain
}

// Release closes the transport and wipes key material. It runs once; a
// session that was not closed gracefully ends in Failed. A step in
// progress on another goroutine finishes first.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		s.op.Lock()
		defer s.op.Unlock()
		if !s.State().Terminal() {
			s.setState(StateFailed, "released")
		}
		if s.hs != nil {
			s.hs.zero()
		}
		s.keys.Zero()
		s.cipher = nil
		s.flight = nil
		s.outbox = nil
		s.timer.Disarm()
		s.inbox = nil
		if s.tr != nil {
			s.releaseErr = s.tr.Close()
		}
	})
	return s.releaseErr
}

// abort fails the session after the context driving op ended. A session
// that already ended reports that instead.
func (s *Session) abort(op string, cause error) error {
	s.op.Lock()
	defer s.op.Unlock()
	if s.State().Terminal() {
		return s.terminalErr(op)
	}
	return s.fail(op, dtlserr.New(dtlserr.KindIO, op, cause))
}

func (s *Session) setState(next State, reason string) {
	s.mu.Lock()
	old := s.state
	s.state = next
	s.mu.Unlock()
	if old != next {
		s.emitState(old, next, reason)
	}
}

// fail moves to Failed and returns err as a classified error for op.
func (s *Session) fail(op string, err error) error {
	if dtlserr.KindOf(err) == dtlserr.KindUnknown {
		err = dtlserr.New(dtlserr.KindTransport, op, err)
	}
	if dtlserr.KindOf(err) == dtlserr.KindHandshakeFailure && s.tr != nil && !errors.Is(err, errPeerAlert) {
		s.sendAlert(alert.Alert{Level: alert.Fatal, Description: alertFor(err)})
	}
	s.err = err
	s.timer.Disarm()
	s.flight = nil
	s.outbox = nil
	s.setState(StateFailed, err.Error())
	s.logError(op, err)
	return err
}

// terminalErr is returned by steps called after the session ended.
func (s *Session) terminalErr(op string) error {
	if st := s.State(); st != StateFailed || s.err == nil {
		return dtlserr.Newf(dtlserr.KindSessionClosed, op, "session is %s", st)
	}
	return s.err
}

func (s *Session) emit(e log.Event) {
	e.Timestamp = s.cfg.Clock.Now()
	e.ConnectionID = s.id
	e.LocalRole = log.RoleClient
	e.RemoteAddr = s.remote
	e.ServerName = s.settings.ServerName
	s.logger.Log(e)
}

func (s *Session) emitState(old, next State, reason string) {
	s.emit(log.Event{
		Layer:       log.LayerSession,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{OldState: old.String(), NewState: next.String(), Reason: reason},
	})
}

func (s *Session) logError(op string, err error) {
	code := dtlserr.Code(err)
	s.emit(log.Event{
		Layer:    log.LayerSession,
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Layer: log.LayerSession, Message: err.Error(), Code: &code, Context: op},
	})
}

// alertFor picks the alert sent when a handshake fails with err.
func alertFor(err error) alert.Description {
	var pe *protocolError
	if errors.As(err, &pe) {
		return pe.alert
	}
	return alert.HandshakeFailure
}

// protocolError carries the alert matching a handshake failure.
type protocolError struct {
	alert alert.Description
	msg   string
}

func (e *protocolError) Error() string { return e.msg }

func handshakeFailure(desc alert.Description, format string, args ...any) error {
	return dtlserr.New(dtlserr.KindHandshakeFailure, "handshake",
		&protocolError{alert: desc, msg: errors.Errorf(format, args...).Error()})
}
