package session

import (
	"context"
	"crypto"
	"io"
	"net"
	"time"

	pionelliptic "github.com/pion/dtls/v2/pkg/crypto/elliptic"
	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pion/dtls/v2/pkg/protocol/extension"
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/suite"
	"github.com/Marz6759/goldy/pkg/verify"
	"github.com/Marz6759/goldy/pkg/wire"
)

// phase is the next server message the client waits for.
type phase uint8

const (
	phaseServerHello phase = iota
	phaseCertificate
	phaseKeyExchange
	phaseHelloDone
	phaseFinished
	phaseDone
)

// hsState is the per-handshake state discarded once the session is
// established.
type hsState struct {
	phase        phase
	random       handshake.Random
	clientRandom []byte
	serverRandom []byte
	cookie       []byte

	// sendSeq is the message_seq of our next handshake message.
	sendSeq uint16
	// nextRecv is the message_seq expected from the server; flightStart
	// is its value when our current flight went out. Server messages
	// below flightStart belong to a flight the server is repeating.
	nextRecv    uint16
	flightStart uint16
	reasm       wire.Reassembler
	buffered    map[uint16][]byte

	transcript    suite.Transcript
	suite         *suite.Suite
	extendedMS    bool
	leafKey       crypto.PublicKey
	share         *suite.KeyShare
	preMaster     []byte
	certRequested bool
	peerCCS       bool
}

func (h *hsState) zero() {
	h.share.Zero()
	suite.Zero(h.preMaster)
	suite.Zero(h.clientRandom)
	h.transcript.Reset()
	h.reasm.Reset()
	h.buffered = nil
}

// blockPoll is how long a driving loop waits after WantWrite.
const blockPoll = time.Millisecond

// HandshakeStep performs one step of the handshake. It returns WantRead
// while waiting for the server, WantWrite when the transport refused a
// datagram, and WantNone once the session is Established.
func (s *Session) HandshakeStep() (Result, error) {
	s.op.Lock()
	defer s.op.Unlock()
	return s.handshakeStep()
}

func (s *Session) handshakeStep() (Result, error) {
	switch st := s.State(); {
	case st == StateEstablished || st == StateClosing:
		return Result{}, nil
	case st.Terminal():
		return Result{}, s.terminalErr("handshake")
	}
	if s.tr == nil {
		return Result{}, dtlserr.Newf(dtlserr.KindNotConfigured, "handshake", "transport not connected")
	}
	if !s.configured {
		return Result{}, dtlserr.Newf(dtlserr.KindNotConfigured, "handshake", "session not configured")
	}

	if s.State() == StateIdle {
		s.setState(StateHandshaking, "handshake started")
		if err := s.startHandshake(); err != nil {
			return Result{}, err
		}
	}

	if res, err := s.flush(); err != nil {
		return Result{}, s.fail("handshake", dtlserr.New(dtlserr.KindTransport, "handshake", err))
	} else if res.Want == WantWrite {
		return res, nil
	}

	if s.timer.FinalElapsed() {
		return Result{}, s.fail("handshake", dtlserr.Newf(dtlserr.KindHandshakeTimeout, "handshake",
			"no answer from %s within %s", s.remote, s.timer.Final()))
	}
	if s.timer.IntermediateElapsed() {
		if err := s.retransmitOnTimer(s.backoff.Next()); err != nil {
			return Result{}, err
		}
		if s.outbox != nil {
			return Result{Want: WantWrite}, nil
		}
	}

	got, err := s.receive(s.timer.Remaining())
	if err != nil {
		if dtlserr.KindOf(err) != dtlserr.KindUnknown {
			return Result{}, err
		}
		return Result{}, s.fail("handshake", dtlserr.New(dtlserr.KindTransport, "handshake", err))
	}
	if s.State() == StateEstablished {
		return Result{}, nil
	}
	if !got || s.outbox == nil {
		return Result{Want: WantRead}, nil
	}
	return Result{Want: WantWrite}, nil
}

// Handshake drives HandshakeStep until the session is Established or the
// handshake fails. Cancelling ctx fails the session with an I/O error.
func (s *Session) Handshake(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return s.abort("handshake", err)
		}
		res, err := s.HandshakeStep()
		if err != nil {
			return err
		}
		switch res.Want {
		case WantNone:
			return nil
		case WantWrite:
			time.Sleep(blockPoll)
		}
	}
}

func (s *Session) startHandshake() error {
	hs := &hsState{buffered: make(map[uint16][]byte)}
	hs.random.GMTUnixTime = s.cfg.Clock.Now()
	if _, err := io.ReadFull(s.rand, hs.random.RandomBytes[:]); err != nil {
		return s.fail("handshake", dtlserr.New(dtlserr.KindEntropy, "random", err))
	}
	fixed := hs.random.MarshalFixed()
	hs.clientRandom = fixed[:]
	s.hs = hs
	return s.sendHello()
}

// helloExtensions are the ClientHello extensions. server_name is only
// sent for host names.
func (s *Session) helloExtensions() []extension.Extension {
	exts := []extension.Extension{
		&extension.SupportedEllipticCurves{EllipticCurves: suite.Curves},
		&extension.SupportedPointFormats{PointFormats: []pionelliptic.CurvePointFormat{pionelliptic.CurvePointFormatUncompressed}},
		&extension.SupportedSignatureAlgorithms{SignatureHashAlgorithms: suite.SignatureAlgorithms},
		&extension.UseExtendedMasterSecret{Supported: true},
		&extension.RenegotiationInfo{},
	}
	if name := s.settings.ServerName; name != "" && net.ParseIP(name) == nil {
		exts = append(exts, &extension.ServerName{ServerName: name})
	}
	return exts
}

// sendHello sends a ClientHello as a new flight. The transcript restarts
// with it, so a cookie exchange leaves no trace in the Finished values.
func (s *Session) sendHello() error {
	hs := s.hs
	ch := &handshake.MessageClientHello{
		Version:            wire.Version,
		Random:             hs.random,
		Cookie:             hs.cookie,
		CipherSuiteIDs:     suite.Supported,
		CompressionMethods: []*protocol.CompressionMethod{{}},
		Extensions:         s.helloExtensions(),
	}
	raw, err := wire.EncodeHandshake(hs.sendSeq, ch)
	if err != nil {
		return s.fail("handshake", dtlserr.New(dtlserr.KindHandshakeFailure, "client hello", err))
	}
	hs.sendSeq++
	hs.transcript.Reset()
	hs.transcript.Add(raw)
	return s.sendFlight([]flightRecord{handshakeRecord(epochPlain, raw)})
}

// handleHandshake processes the fragments of one handshake record.
// dup reports whether a repeated server flight already caused a
// retransmission in this datagram.
func (s *Session) handleHandshake(payload []byte, epoch uint16, dup *bool) error {
	frags, err := wire.SplitFragments(payload)
	if err != nil {
		s.logDrop(protocol.ContentTypeHandshake, epoch, 0, err.Error())
	}
	for _, f := range frags {
		if err := s.handleFragment(f, epoch, dup); err != nil {
			return err
		}
		if s.State().Terminal() {
			return nil
		}
	}
	return nil
}

func (s *Session) handleFragment(f wire.Fragment, epoch uint16, dup *bool) error {
	hs := s.hs
	seq := f.Header.MessageSequence

	switch {
	case hs == nil || hs.phase == phaseDone:
		// Established: the server is repeating its last flight because
		// it has not seen ours yet, or the link duplicated it.
		s.logHandshake(log.DirectionIn, f.Header.Type, seq, true)
		return nil
	case seq < hs.flightStart:
		s.logHandshake(log.DirectionIn, f.Header.Type, seq, true)
		if !*dup {
			*dup = true
			return s.retransmit()
		}
		return nil
	case seq < hs.nextRecv:
		s.logHandshake(log.DirectionIn, f.Header.Type, seq, true)
		return nil
	case seq >= hs.nextRecv+maxBufferedMessages:
		s.logDrop(protocol.ContentTypeHandshake, epoch, 0, "message too far ahead")
		return nil
	case (f.Header.Type == handshake.TypeFinished) != (epoch == epochSealed):
		s.logDrop(protocol.ContentTypeHandshake, epoch, 0, "wrong epoch for "+wire.HandshakeName(f.Header.Type))
		return nil
	}

	raw, complete, err := hs.reasm.Push(f)
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.DecodeError, "%v", err))
	}
	if !complete {
		return nil
	}
	if seq > hs.nextRecv {
		if _, ok := hs.buffered[seq]; !ok {
			hs.buffered[seq] = raw
		}
		return nil
	}

	if err := s.processMessage(raw); err != nil {
		return err
	}
	for s.hs != nil && s.hs.phase != phaseDone && !s.State().Terminal() {
		next, ok := s.hs.buffered[s.hs.nextRecv]
		if !ok {
			break
		}
		delete(s.hs.buffered, s.hs.nextRecv)
		if err := s.processMessage(next); err != nil {
			return err
		}
	}
	return nil
}

// processMessage applies the complete in-order message raw, which is
// also its transcript input.
func (s *Session) processMessage(raw []byte) error {
	hs := s.hs
	hdr, msg, err := wire.ParseMessage(raw)
	s.logHandshake(log.DirectionIn, hdr.Type, hdr.MessageSequence, false)
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.DecodeError, "%v", err))
	}
	hs.nextRecv++
	hs.reasm.Discard(hs.nextRecv)

	switch m := msg.(type) {
	case *handshake.MessageHelloVerifyRequest:
		if hs.phase != phaseServerHello || hs.cookie != nil {
			break
		}
		if len(m.Cookie) == 0 {
			return s.fail("handshake", handshakeFailure(alert.IllegalParameter, "empty cookie"))
		}
		hs.cookie = append([]byte(nil), m.Cookie...)
		hs.buffered = make(map[uint16][]byte)
		return s.sendHello()

	case *handshake.MessageServerHello:
		if hs.phase == phaseServerHello {
			return s.onServerHello(m, raw)
		}

	case *handshake.MessageCertificate:
		if hs.phase == phaseCertificate {
			return s.onCertificate(m, raw)
		}

	case *wire.ServerKeyExchange:
		if hs.phase == phaseKeyExchange {
			return s.onKeyExchange(m, raw)
		}

	case *handshake.MessageCertificateRequest:
		if hs.phase == phaseHelloDone && !hs.certRequested {
			hs.certRequested = true
			hs.transcript.Add(raw)
			return nil
		}

	case *handshake.MessageServerHelloDone:
		if hs.phase == phaseHelloDone {
			hs.transcript.Add(raw)
			return s.sendClientFlight()
		}

	case *handshake.MessageFinished:
		if hs.phase == phaseFinished {
			return s.onFinished(m)
		}
	}
	return s.fail("handshake", handshakeFailure(alert.UnexpectedMessage,
		"unexpected %s while awaiting %s", wire.HandshakeName(hdr.Type), hs.phase))
}

func (s *Session) onServerHello(m *handshake.MessageServerHello, raw []byte) error {
	hs := s.hs
	if !m.Version.Equal(wire.Version) {
		return s.fail("handshake", handshakeFailure(alert.ProtocolVersion,
			"server chose version %d.%d", m.Version.Major, m.Version.Minor))
	}
	if m.CipherSuiteID == nil {
		return s.fail("handshake", handshakeFailure(alert.IllegalParameter, "server chose no suite"))
	}
	chosen, ok := suite.Lookup(*m.CipherSuiteID)
	if !ok {
		return s.fail("handshake", handshakeFailure(alert.IllegalParameter,
			"server chose suite 0x%04x", *m.CipherSuiteID))
	}
	if m.CompressionMethod == nil || m.CompressionMethod.ID != 0 {
		return s.fail("handshake", handshakeFailure(alert.IllegalParameter, "server chose compression"))
	}
	for _, e := range m.Extensions {
		if _, ok := e.(*extension.UseExtendedMasterSecret); ok {
			hs.extendedMS = true
		}
	}
	sr := m.Random.MarshalFixed()
	hs.serverRandom = sr[:]
	hs.suite = chosen
	hs.transcript.Add(raw)
	hs.phase = phaseCertificate
	return nil
}

func (s *Session) onCertificate(m *handshake.MessageCertificate, raw []byte) error {
	hs := s.hs
	chain, err := verify.ParseChain(m.Certificate)
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.BadCertificate, "%v", err))
	}
	s.chain = chain
	if len(chain) == 0 {
		// Without a certificate the key exchange cannot be authenticated.
		s.flags = verify.Missing
		return s.fail("handshake", handshakeFailure(alert.BadCertificate, "server sent no certificate"))
	}
	auth, err := suite.AuthOf(chain[0].PublicKey)
	if err != nil || auth != hs.suite.Auth {
		return s.fail("handshake", handshakeFailure(alert.UnsupportedCertificate,
			"%s certificate key for %s", chain[0].PublicKeyAlgorithm, hs.suite))
	}
	hs.leafKey = chain[0].PublicKey
	hs.transcript.Add(raw)
	hs.phase = phaseKeyExchange
	return nil
}

func (s *Session) onKeyExchange(m *wire.ServerKeyExchange, raw []byte) error {
	hs := s.hs
	if !suite.SupportedCurve(m.Curve) {
		return s.fail("handshake", handshakeFailure(alert.IllegalParameter, "server chose curve %s", m.Curve))
	}
	err := suite.VerifyKeyExchange(hs.leafKey, m.Algorithm, hs.clientRandom, hs.serverRandom, m.Params(), m.Signature)
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.DecryptError, "%v", err))
	}
	share, err := suite.GenerateKeyShare(m.Curve, s.rand)
	if err != nil {
		return s.fail("handshake", dtlserr.New(dtlserr.KindEntropy, "key share", err))
	}
	pms, err := share.Shared(m.PublicKey)
	if err != nil {
		share.Zero()
		return s.fail("handshake", handshakeFailure(alert.IllegalParameter, "key share: %v", err))
	}
	hs.share, hs.preMaster = share, pms
	hs.transcript.Add(raw)
	hs.phase = phaseHelloDone
	return nil
}

// sendClientFlight answers ServerHelloDone with [Certificate],
// ClientKeyExchange, ChangeCipherSpec and the first protected record,
// Finished.
func (s *Session) sendClientFlight() error {
	hs := s.hs
	var flight []flightRecord
	add := func(m handshake.Message, epoch uint16) error {
		raw, err := wire.EncodeHandshake(hs.sendSeq, m)
		if err != nil {
			return s.fail("handshake", handshakeFailure(alert.InternalError, "%v", err))
		}
		hs.sendSeq++
		hs.transcript.Add(raw)
		flight = append(flight, handshakeRecord(epoch, raw))
		return nil
	}

	if hs.certRequested {
		// No client certificate: an empty list.
		if err := add(&handshake.MessageCertificate{}, epochPlain); err != nil {
			return err
		}
	}
	if err := add(&wire.ClientKeyExchange{PublicKey: hs.share.Public}, epochPlain); err != nil {
		return err
	}

	var sessionHash []byte
	if hs.extendedMS {
		sessionHash = hs.transcript.Sum()
	}
	keys, err := suite.DeriveKeys(hs.suite, hs.preMaster, hs.clientRandom, hs.serverRandom, sessionHash)
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.InternalError, "key schedule: %v", err))
	}
	cipher, err := keys.Cipher(true)
	if err != nil {
		keys.Zero()
		return s.fail("handshake", handshakeFailure(alert.InternalError, "record keys: %v", err))
	}
	s.keys, s.cipher = keys, cipher
	flight = append(flight, flightRecord{typ: protocol.ContentTypeChangeCipherSpec, epoch: epochPlain, data: []byte{1}})

	vd, err := keys.ClientFinished(hs.transcript.Bytes())
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.InternalError, "finished: %v", err))
	}
	if err := add(&handshake.MessageFinished{VerifyData: vd}, epochSealed); err != nil {
		return err
	}
	hs.phase = phaseFinished
	return s.sendFlight(flight)
}

// onFinished checks the server Finished, which covers our Finished, and
// completes the handshake.
func (s *Session) onFinished(m *handshake.MessageFinished) error {
	hs := s.hs
	want, err := s.keys.ServerFinished(hs.transcript.Bytes())
	if err != nil {
		return s.fail("handshake", handshakeFailure(alert.InternalError, "finished: %v", err))
	}
	if err := suite.VerifyFinished(want, m.VerifyData); err != nil {
		return s.fail("handshake", handshakeFailure(alert.DecryptError, "%v", err))
	}

	s.flags = verify.Check(s.chain, verify.Options{
		Store:      s.settings.Trust,
		ServerName: s.settings.ServerName,
		Now:        s.cfg.Clock.Now(),
	})
	s.overhead = hs.suite.Overhead
	hs.phase = phaseDone
	hs.zero()
	s.flight = nil
	s.established = true
	s.timer.Disarm()
	s.setState(StateEstablished, hs.suite.Name+", verify flags "+s.flags.String())
	return nil
}

func (p phase) String() string {
	switch p {
	case phaseServerHello:
		return "server_hello"
	case phaseCertificate:
		return "certificate"
	case phaseKeyExchange:
		return "server_key_exchange"
	case phaseHelloDone:
		return "server_hello_done"
	case phaseFinished:
		return "finished"
	default:
		return "nothing"
	}
}

// errPeerAlert marks a failure caused by an alert from the peer; no alert
// is sent back.
var errPeerAlert = errors.New("peer sent fatal alert")
