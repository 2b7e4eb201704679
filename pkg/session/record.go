package session

import (
	"time"

	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/transport"
	"github.com/Marz6759/goldy/pkg/wire"
)

// Record epochs.
const (
	epochPlain  uint16 = 0
	epochSealed uint16 = 1
)

// maxStepWait caps a single transport wait so driving loops observe
// cancellation promptly.
const maxStepWait = 100 * time.Millisecond

// flightRecord is one record of a flight, kept in plaintext so every
// transmission gets a fresh sequence number.
type flightRecord struct {
	typ   protocol.ContentType
	epoch uint16
	data  []byte
}

func handshakeRecord(epoch uint16, raw []byte) flightRecord {
	return flightRecord{typ: protocol.ContentTypeHandshake, epoch: epoch, data: raw}
}

// sendFlight makes flight the current flight, restarts the
// retransmission timer and transmits it. Server messages numbered below
// the current expectation are from now on treated as repeats.
func (s *Session) sendFlight(flight []flightRecord) error {
	s.flight = flight
	s.hs.flightStart = s.hs.nextRecv
	s.backoff.Reset()
	s.timer.Arm(s.backoff.Next(), s.cfg.HandshakeTimeoutMax)
	return s.transmitFlight(false)
}

// retransmit resends the current flight without touching the timer.
func (s *Session) retransmit() error {
	if len(s.flight) == 0 {
		return nil
	}
	return s.transmitFlight(true)
}

// retransmitOnTimer resends the current flight after an intermediate
// deadline and pushes the intermediate deadline out by next.
func (s *Session) retransmitOnTimer(next time.Duration) error {
	s.emit(log.Event{
		Layer:    log.LayerSession,
		Category: log.CategoryTimer,
		Timer:    &log.TimerEvent{Kind: log.TimerIntermediate, Attempt: s.backoff.Attempts(), Next: next},
	})
	if err := s.retransmit(); err != nil {
		return err
	}
	s.timer.RearmIntermediate(next)
	return nil
}

// transmitFlight packs the flight into one datagram.
func (s *Session) transmitFlight(again bool) error {
	if s.outbox != nil {
		// The previous datagram is still waiting for the transport.
		return nil
	}
	var dgram []byte
	for _, r := range s.flight {
		raw, err := s.encodeRecord(r.typ, r.epoch, r.data)
		if err != nil {
			return s.fail("handshake", dtlserr.New(dtlserr.KindHandshakeFailure, "record", err))
		}
		dgram = append(dgram, raw...)
		if r.typ == protocol.ContentTypeHandshake {
			if hdr, _, err := wire.ParseMessage(r.data); err == nil {
				s.logHandshake(log.DirectionOut, hdr.Type, hdr.MessageSequence, again)
			}
		}
	}
	if _, err := s.send(dgram, -1); err != nil {
		return s.fail("handshake", dtlserr.New(dtlserr.KindTransport, "send", err))
	}
	return nil
}

// encodeRecord builds one record with the next sequence number of epoch.
// Epoch 1 records are protected with the negotiated cipher.
func (s *Session) encodeRecord(typ protocol.ContentType, epoch uint16, payload []byte) ([]byte, error) {
	rec, raw, err := wire.NewRecord(epoch, s.seq[epoch], &wire.RawContent{Type: typ, Data: payload})
	if err != nil {
		return nil, err
	}
	if epoch == epochSealed {
		if s.cipher == nil {
			return nil, errors.New("no record keys")
		}
		if raw, err = s.cipher.Encrypt(rec, raw); err != nil {
			return nil, errors.Wrap(err, "seal")
		}
	}
	s.seq[epoch]++
	return raw, nil
}

// send hands one datagram to the transport. A would-block parks the
// datagram in the outbox; app is the application byte count it carries.
func (s *Session) send(dgram []byte, app int) (Want, error) {
	_, err := s.tr.Send(dgram)
	switch {
	case errors.Is(err, transport.ErrWouldBlock):
		s.outbox = dgram
		s.outboxApp = app
		return WantWrite, nil
	case err != nil:
		return WantNone, err
	}
	s.emit(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(dgram),
	})
	return WantNone, nil
}

// flush retries the parked datagram. N is its application byte count when
// it went out, -1 otherwise.
func (s *Session) flush() (Result, error) {
	if s.outbox == nil {
		return Result{N: -1}, nil
	}
	dgram, app := s.outbox, s.outboxApp
	s.outbox, s.outboxApp = nil, -1
	want, err := s.send(dgram, app)
	if err != nil || want == WantWrite {
		return Result{N: -1, Want: want}, err
	}
	return Result{N: app}, nil
}

// sendAlert sends a, best effort: sealed once record keys exist, plain
// before.
func (s *Session) sendAlert(a alert.Alert) {
	epoch := epochPlain
	if s.cipher != nil {
		epoch = epochSealed
	}
	payload, err := a.Marshal()
	if err != nil {
		return
	}
	raw, err := s.encodeRecord(protocol.ContentTypeAlert, epoch, payload)
	if err != nil {
		return
	}
	s.logAlert(log.DirectionOut, a)
	_, _ = s.tr.Send(raw)
}

// receive waits up to d for one datagram and processes it. It reports
// whether a datagram arrived.
func (s *Session) receive(d time.Duration) (bool, error) {
	if d > maxStepWait {
		d = maxStepWait
	}
	n, timedOut, err := s.tr.RecvTimeout(s.buf, d)
	if err != nil {
		return false, err
	}
	if timedOut {
		return false, nil
	}
	s.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(s.buf[:n]),
	})
	return true, s.processDatagram(s.buf[:n])
}

// processDatagram applies every valid record in dgram. Records that fail
// to parse, authenticate, or pass the replay window are dropped.
func (s *Session) processDatagram(dgram []byte) error {
	records, err := wire.SplitRecords(dgram)
	if err != nil {
		s.logDrop(0, 0, 0, err.Error())
	}
	dup := false
	for _, rec := range records {
		h := rec.Header
		switch h.Epoch {
		case epochPlain:
			if err := s.processPlain(rec, &dup); err != nil {
				return err
			}
		case epochSealed:
			if err := s.processSealed(rec, &dup); err != nil {
				return err
			}
		default:
			s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "unknown epoch")
		}
		if s.State().Terminal() {
			return nil
		}
	}
	return nil
}

func (s *Session) processPlain(rec wire.Record, dup *bool) error {
	h := rec.Header
	switch h.ContentType {
	case protocol.ContentTypeHandshake:
		return s.handleHandshake(rec.Payload, epochPlain, dup)
	case protocol.ContentTypeChangeCipherSpec:
		if s.hs != nil && s.hs.phase == phaseFinished {
			s.hs.peerCCS = true
			return nil
		}
		s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "unexpected change_cipher_spec")
		return nil
	case protocol.ContentTypeAlert:
		a, err := wire.ParseAlert(rec.Payload)
		if err != nil {
			s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "malformed alert")
			return nil
		}
		s.logAlert(log.DirectionIn, a)
		if s.established || a.Level != alert.Fatal {
			// Unauthenticated alerts cannot end an established session.
			return nil
		}
		return s.fail("handshake", dtlserr.New(dtlserr.KindHandshakeFailure, "handshake",
			errors.Wrap(errPeerAlert, wire.AlertString(a))))
	default:
		s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "plaintext")
		return nil
	}
}

func (s *Session) processSealed(rec wire.Record, dup *bool) error {
	h := rec.Header
	if s.cipher == nil {
		s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "no keys")
		return nil
	}
	if !s.replay.Check(h.SequenceNumber) {
		s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "replay")
		return nil
	}
	out, err := s.cipher.Decrypt(rec.Raw)
	if err != nil {
		s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "authentication")
		return nil
	}
	s.replay.Accept(h.SequenceNumber)
	pt := out[wire.RecordHeaderLen:]

	s.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerRecord,
		Category:  log.CategoryMessage,
		Record:    &log.RecordEvent{ContentType: uint8(h.ContentType), Epoch: h.Epoch, Seq: h.SequenceNumber, Length: len(pt)},
	})

	switch h.ContentType {
	case protocol.ContentTypeHandshake:
		return s.handleHandshake(pt, epochSealed, dup)
	case protocol.ContentTypeApplicationData:
		if !s.established {
			s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "before finished")
			return nil
		}
		if len(pt) > 0 {
			s.inbox = append(s.inbox, append([]byte(nil), pt...))
		}
	case protocol.ContentTypeAlert:
		a, err := wire.ParseAlert(pt)
		if err != nil {
			s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "malformed alert")
			return nil
		}
		s.logAlert(log.DirectionIn, a)
		cause := errors.Wrap(errPeerAlert, wire.AlertString(a))
		switch {
		case a.Description == alert.CloseNotify:
			s.peerClosed = true
		case a.Level != alert.Fatal:
		case !s.established:
			return s.fail("handshake", dtlserr.New(dtlserr.KindHandshakeFailure, "handshake", cause))
		default:
			return s.fail("read", dtlserr.New(dtlserr.KindIO, "read", cause))
		}
	default:
		s.logDrop(h.ContentType, h.Epoch, h.SequenceNumber, "unexpected content")
	}
	return nil
}

func (s *Session) logDrop(typ protocol.ContentType, epoch uint16, seq uint64, reason string) {
	s.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerRecord,
		Category:  log.CategoryMessage,
		Record:    &log.RecordEvent{ContentType: uint8(typ), Epoch: epoch, Seq: seq, Dropped: reason},
	})
}

func (s *Session) logHandshake(dir log.Direction, typ handshake.Type, seq uint16, retransmit bool) {
	s.emit(log.Event{
		Direction: dir,
		Layer:     log.LayerHandshake,
		Category:  log.CategoryMessage,
		Handshake: &log.HandshakeEvent{
			Type:       uint8(typ),
			Name:       wire.HandshakeName(typ),
			MessageSeq: seq,
			Retransmit: retransmit,
		},
	})
}

func (s *Session) logAlert(dir log.Direction, a alert.Alert) {
	s.emit(log.Event{
		Direction: dir,
		Layer:     log.LayerRecord,
		Category:  log.CategoryAlert,
		Alert:     &log.AlertEvent{Level: uint8(a.Level), Description: uint8(a.Description), Name: wire.AlertName(a.Description)},
	})
}
