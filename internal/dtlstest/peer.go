package dtlstest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/dtls/v2/pkg/crypto/clientcertificate"
	"github.com/pion/dtls/v2/pkg/crypto/elliptic"
	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pion/dtls/v2/pkg/protocol/extension"
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/suite"
	"github.com/Marz6759/goldy/pkg/transport"
	"github.com/Marz6759/goldy/pkg/wire"
)

// PeerConfig shapes the server behavior of a Peer.
type PeerConfig struct {
	// Identity is presented in the Certificate message. Nil sends an
	// empty chain and no ServerKeyExchange.
	Identity *Identity

	// Cookie makes the peer demand a cookie exchange first.
	Cookie bool

	// Respond maps a request to its response. Nil echoes. A nil result
	// sends nothing.
	Respond func(req []byte) []byte

	// Silent never answers application data.
	Silent bool

	// CloseOnRequest answers application data with close_notify.
	CloseOnRequest bool

	// BadFinished corrupts the server Finished.
	BadFinished bool

	// Suite overrides the suite chosen in ServerHello. By default the
	// peer takes the first offered suite its key can authenticate.
	Suite uint16

	// Curve overrides the ECDHE group, X25519 by default.
	Curve elliptic.Curve

	// RequestClientCert sends a CertificateRequest.
	RequestClientCert bool

	// NoExtendedMasterSecret declines the extended master secret.
	NoExtendedMasterSecret bool
}

// PeerStats counts what a Peer saw.
type PeerStats struct {
	ClientHellos   int
	HVRs           int
	Flight4        int
	ClientFinished int
	AppRecords     int
	Requests       [][]byte
	Alerts         []alert.Alert
	ClientClosed   bool
	Established    bool

	// Suite is the suite chosen in the last ServerHello.
	Suite uint16
	// ExtendedMasterSecret is set when the last handshake used it.
	ExtendedMasterSecret bool
	// EmptyClientCertificate is set when the client answered a
	// CertificateRequest with an empty chain.
	EmptyClientCertificate bool
}

// Peer is the server side of the handshake with an echo application.
// It serves one client at a time on a transport.
type Peer struct {
	tr  transport.Transport
	cfg PeerConfig

	secret [32]byte
	conn   *peerConn
	seq    [2]uint64
	reasm  wire.Reassembler

	mu    sync.Mutex
	stats PeerStats
}

// peerConn is the server state for one client random.
type peerConn struct {
	clientRandom []byte
	serverRandom []byte
	suite        *suite.Suite
	extendedMS   bool
	share        *suite.KeyShare
	transcript   suite.Transcript
	sendSeq      uint16
	seen         map[uint16]bool

	flight4     [][]byte
	keys        *suite.Keys
	cipher      suite.RecordCipher
	clientFin   []byte
	finished    []byte
	replay      suite.ReplayWindow
	established bool
}

// NewPeer returns a peer serving on tr.
func NewPeer(tr transport.Transport, cfg PeerConfig) *Peer {
	p := &Peer{tr: tr, cfg: cfg}
	_, _ = rand.Read(p.secret[:])
	return p
}

// Start runs a peer on tr until the test ends.
func Start(t testing.TB, tr transport.Transport, cfg PeerConfig) *Peer {
	t.Helper()
	p := NewPeer(tr, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

// Stats returns a snapshot of the counters.
func (p *Peer) Stats() PeerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Requests = append([][]byte(nil), p.stats.Requests...)
	s.Alerts = append([]alert.Alert(nil), p.stats.Alerts...)
	return s
}

func (p *Peer) update(fn func(*PeerStats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

// Run serves until ctx is done or the transport closes.
func (p *Peer) Run(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for ctx.Err() == nil {
		n, timedOut, err := p.tr.RecvTimeout(buf, 20*time.Millisecond)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if timedOut {
			continue
		}
		p.handleDatagram(buf[:n])
	}
	return nil
}

func (p *Peer) handleDatagram(dgram []byte) {
	records, _ := wire.SplitRecords(dgram)
	for _, rec := range records {
		switch rec.Header.Epoch {
		case 0:
			p.handlePlain(rec)
		case 1:
			p.handleSealed(rec)
		}
	}
}

func (p *Peer) handlePlain(rec wire.Record) {
	switch rec.Header.ContentType {
	case protocol.ContentTypeAlert:
		if a, err := wire.ParseAlert(rec.Payload); err == nil {
			p.update(func(s *PeerStats) { s.Alerts = append(s.Alerts, a) })
		}
	case protocol.ContentTypeHandshake:
		p.handleHandshake(rec.Payload)
	}
}

func (p *Peer) handleHandshake(payload []byte) {
	frags, _ := wire.SplitFragments(payload)
	for _, f := range frags {
		raw, complete, err := p.reasm.Push(f)
		if err != nil || !complete {
			continue
		}
		hdr, msg, err := wire.ParseMessage(raw)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case *handshake.MessageClientHello:
			p.handleHello(m, raw)
		case *handshake.MessageCertificate:
			if c := p.conn; c != nil && !c.seen[hdr.MessageSequence] {
				c.seen[hdr.MessageSequence] = true
				c.transcript.Add(raw)
				p.update(func(s *PeerStats) { s.EmptyClientCertificate = len(m.Certificate) == 0 })
			}
		case *wire.ClientKeyExchange:
			if c := p.conn; c != nil && !c.seen[hdr.MessageSequence] {
				c.seen[hdr.MessageSequence] = true
				p.handleKeyExchange(c, m, raw)
			}
		case *handshake.MessageFinished:
			p.handleFinished(hdr.MessageSequence, m, raw)
		}
	}
}

func (p *Peer) cookieFor(random []byte) []byte {
	h := sha256.New()
	h.Write(p.secret[:])
	h.Write(random)
	return h.Sum(nil)[:16]
}

func (p *Peer) handleHello(ch *handshake.MessageClientHello, raw []byte) {
	p.update(func(s *PeerStats) { s.ClientHellos++ })
	cr := ch.Random.MarshalFixed()

	if p.cfg.Cookie && !bytes.Equal(ch.Cookie, p.cookieFor(cr[:])) {
		hvr, err := wire.EncodeHandshake(0, &handshake.MessageHelloVerifyRequest{
			Version: wire.Version,
			Cookie:  p.cookieFor(cr[:]),
		})
		if err != nil {
			return
		}
		p.update(func(s *PeerStats) { s.HVRs++ })
		p.sendPlain([][]byte{hvr})
		return
	}

	if p.conn != nil && bytes.Equal(p.conn.clientRandom, cr[:]) {
		p.update(func(s *PeerStats) { s.Flight4++ })
		p.sendPlain(p.conn.flight4)
		return
	}

	var seq uint16
	if p.cfg.Cookie {
		seq = 1
	}
	conn, err := p.buildFlight(seq, ch, raw)
	if err != nil {
		return
	}
	p.conn = conn
	p.update(func(s *PeerStats) {
		s.Flight4++
		s.Suite = uint16(conn.suite.ID)
		s.ExtendedMasterSecret = conn.extendedMS
	})
	p.sendPlain(conn.flight4)
}

// chooseSuite takes the override or the first offered suite whose
// authentication matches the identity key.
func (p *Peer) chooseSuite(offered []uint16) (*suite.Suite, uint16) {
	if p.cfg.Suite != 0 {
		s, _ := suite.Lookup(p.cfg.Suite)
		return s, p.cfg.Suite
	}
	auth := suite.AuthECDSA
	if p.cfg.Identity != nil {
		if a, err := suite.AuthOf(p.cfg.Identity.Key.Public()); err == nil {
			auth = a
		}
	}
	for _, id := range offered {
		if s, ok := suite.Lookup(id); ok && s.Auth == auth {
			return s, id
		}
	}
	return nil, 0
}

// buildFlight answers a ClientHello with ServerHello, Certificate,
// ServerKeyExchange, an optional CertificateRequest and ServerHelloDone.
func (p *Peer) buildFlight(seq uint16, ch *handshake.MessageClientHello, raw []byte) (*peerConn, error) {
	chosen, id := p.chooseSuite(ch.CipherSuiteIDs)
	if id == 0 {
		return nil, errors.New("no common suite")
	}
	if chosen == nil {
		// An override the client cannot know; keep a placeholder so the
		// ServerHello still goes out.
		chosen = &suite.Suite{ID: suite.ID(id), Name: "unknown"}
	}

	var random handshake.Random
	random.GMTUnixTime = time.Now()
	if _, err := io.ReadFull(rand.Reader, random.RandomBytes[:]); err != nil {
		return nil, err
	}
	cr, sr := ch.Random.MarshalFixed(), random.MarshalFixed()
	c := &peerConn{
		clientRandom: cr[:],
		serverRandom: sr[:],
		suite:        chosen,
		sendSeq:      seq,
		seen:         make(map[uint16]bool),
	}
	c.transcript.Add(raw)

	var exts []extension.Extension
	for _, e := range ch.Extensions {
		if _, ok := e.(*extension.UseExtendedMasterSecret); ok && !p.cfg.NoExtendedMasterSecret {
			c.extendedMS = true
			exts = append(exts, &extension.UseExtendedMasterSecret{Supported: true})
		}
	}

	add := func(m handshake.Message) error {
		b, err := wire.EncodeHandshake(c.sendSeq, m)
		if err != nil {
			return err
		}
		c.sendSeq++
		c.transcript.Add(b)
		c.flight4 = append(c.flight4, b)
		return nil
	}

	if err := add(&handshake.MessageServerHello{
		Version:           wire.Version,
		Random:            random,
		CipherSuiteID:     &id,
		CompressionMethod: &protocol.CompressionMethod{},
		Extensions:        exts,
	}); err != nil {
		return nil, err
	}

	var chain [][]byte
	if p.cfg.Identity != nil {
		chain = p.cfg.Identity.Chain
	}
	if err := add(&handshake.MessageCertificate{Certificate: chain}); err != nil {
		return nil, err
	}

	if p.cfg.Identity != nil {
		curve := p.cfg.Curve
		if curve == 0 {
			curve = elliptic.X25519
		}
		share, err := suite.GenerateKeyShare(curve, rand.Reader)
		if err != nil {
			return nil, err
		}
		c.share = share
		ske := &wire.ServerKeyExchange{Curve: curve, PublicKey: share.Public}
		ske.Algorithm, ske.Signature, err = suite.SignKeyExchange(rand.Reader, p.cfg.Identity.Key, c.clientRandom, c.serverRandom, ske.Params())
		if err != nil {
			return nil, err
		}
		if err := add(ske); err != nil {
			return nil, err
		}
	}

	if p.cfg.RequestClientCert {
		if err := add(&handshake.MessageCertificateRequest{
			CertificateTypes:        []clientcertificate.Type{clientcertificate.ECDSASign, clientcertificate.RSASign},
			SignatureHashAlgorithms: suite.SignatureAlgorithms,
		}); err != nil {
			return nil, err
		}
	}
	if err := add(&handshake.MessageServerHelloDone{}); err != nil {
		return nil, err
	}
	return c, nil
}

// handleKeyExchange derives the session keys from the client share.
func (p *Peer) handleKeyExchange(c *peerConn, cke *wire.ClientKeyExchange, raw []byte) {
	if c.share == nil {
		return
	}
	c.transcript.Add(raw)
	pms, err := c.share.Shared(cke.PublicKey)
	if err != nil {
		p.sendAlert(alert.IllegalParameter)
		return
	}
	var sessionHash []byte
	if c.extendedMS {
		sessionHash = c.transcript.Sum()
	}
	keys, err := suite.DeriveKeys(c.suite, pms, c.clientRandom, c.serverRandom, sessionHash)
	if err != nil {
		return
	}
	cipher, err := keys.Cipher(false)
	if err != nil {
		return
	}
	fin, err := keys.ClientFinished(c.transcript.Bytes())
	if err != nil {
		return
	}
	c.keys, c.cipher, c.clientFin = keys, cipher, fin
}

// handleFinished checks the client Finished and answers with
// ChangeCipherSpec and the server Finished. A repeated client Finished
// gets the same answer again.
func (p *Peer) handleFinished(seq uint16, fin *handshake.MessageFinished, raw []byte) {
	c := p.conn
	if c == nil || c.keys == nil {
		return
	}
	if c.established {
		if c.seen[seq] && bytes.Equal(fin.VerifyData, c.clientFin) {
			p.update(func(s *PeerStats) { s.ClientFinished++ })
			p.sendFinished(c)
		}
		return
	}
	if suite.VerifyFinished(c.clientFin, fin.VerifyData) != nil {
		p.sendAlert(alert.DecryptError)
		return
	}
	c.seen[seq] = true
	c.transcript.Add(raw)
	vd, err := c.keys.ServerFinished(c.transcript.Bytes())
	if err != nil {
		return
	}
	if p.cfg.BadFinished {
		vd[0] ^= 0xFF
	}
	c.finished, err = wire.EncodeHandshake(c.sendSeq, &handshake.MessageFinished{VerifyData: vd})
	if err != nil {
		return
	}
	c.sendSeq++
	c.established = true
	p.update(func(s *PeerStats) {
		s.ClientFinished++
		s.Established = true
	})
	p.sendFinished(c)
}

func (p *Peer) sendFinished(c *peerConn) {
	ccs, err := wire.AppendRecord(nil, protocol.ContentTypeChangeCipherSpec, 0, p.next(0), []byte{1})
	if err != nil {
		return
	}
	fin, err := p.seal(c, protocol.ContentTypeHandshake, c.finished)
	if err != nil {
		return
	}
	_, _ = p.tr.Send(append(ccs, fin...))
}

func (p *Peer) handleSealed(rec wire.Record) {
	c := p.conn
	if c == nil || c.cipher == nil || !c.replay.Check(rec.Header.SequenceNumber) {
		return
	}
	out, err := c.cipher.Decrypt(rec.Raw)
	if err != nil {
		return
	}
	c.replay.Accept(rec.Header.SequenceNumber)
	pt := out[wire.RecordHeaderLen:]

	switch rec.Header.ContentType {
	case protocol.ContentTypeHandshake:
		p.handleHandshake(pt)
	case protocol.ContentTypeAlert:
		a, err := wire.ParseAlert(pt)
		if err != nil {
			return
		}
		p.update(func(s *PeerStats) {
			s.Alerts = append(s.Alerts, a)
			if a.Description == alert.CloseNotify {
				s.ClientClosed = true
			}
		})
	case protocol.ContentTypeApplicationData:
		if !c.established {
			return
		}
		req := append([]byte(nil), pt...)
		p.update(func(s *PeerStats) {
			s.AppRecords++
			s.Requests = append(s.Requests, req)
		})
		switch {
		case p.cfg.Silent:
		case p.cfg.CloseOnRequest:
			if b, err := wire.CloseNotify.Marshal(); err == nil {
				p.sendSealed(protocol.ContentTypeAlert, b)
			}
		default:
			resp := req
			if p.cfg.Respond != nil {
				resp = p.cfg.Respond(req)
			}
			if resp != nil {
				p.sendSealed(protocol.ContentTypeApplicationData, resp)
			}
		}
	}
}

func (p *Peer) next(epoch int) uint64 {
	s := p.seq[epoch]
	p.seq[epoch]++
	return s
}

// sendPlain sends handshake messages as epoch 0 records, packing as many
// as fit into each datagram.
func (p *Peer) sendPlain(flight [][]byte) {
	var dgram []byte
	for _, msg := range flight {
		if len(dgram) > 0 && len(dgram)+wire.RecordHeaderLen+len(msg) > wire.MaxDatagramSize {
			_, _ = p.tr.Send(dgram)
			dgram = nil
		}
		var err error
		dgram, err = wire.AppendRecord(dgram, protocol.ContentTypeHandshake, 0, p.next(0), msg)
		if err != nil {
			return
		}
	}
	if len(dgram) > 0 {
		_, _ = p.tr.Send(dgram)
	}
}

// sendAlert sends a fatal alert, sealed once keys exist.
func (p *Peer) sendAlert(desc alert.Description) {
	a := &alert.Alert{Level: alert.Fatal, Description: desc}
	b, err := a.Marshal()
	if err != nil {
		return
	}
	if c := p.conn; c != nil && c.cipher != nil {
		p.sendSealed(protocol.ContentTypeAlert, b)
		return
	}
	if dgram, err := wire.AppendRecord(nil, protocol.ContentTypeAlert, 0, p.next(0), b); err == nil {
		_, _ = p.tr.Send(dgram)
	}
}

func (p *Peer) seal(c *peerConn, typ protocol.ContentType, payload []byte) ([]byte, error) {
	rec, raw, err := wire.NewRecord(1, p.next(1), &wire.RawContent{Type: typ, Data: payload})
	if err != nil {
		return nil, err
	}
	return c.cipher.Encrypt(rec, raw)
}

func (p *Peer) sendSealed(typ protocol.ContentType, payload []byte) {
	dgram, err := p.seal(p.conn, typ, payload)
	if err != nil {
		return
	}
	_, _ = p.tr.Send(dgram)
}
