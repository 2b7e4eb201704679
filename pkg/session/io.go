package session

import (
	"context"
	"time"

	"github.com/pion/dtls/v2/pkg/protocol"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/log"
	"github.com/Marz6759/goldy/pkg/wire"
)

// WriteStep sends up to MaxFragment bytes of p as one record and returns
// the count accepted. On WantWrite the record is parked; the next call
// delivers it and reports its count, so retry with the same p.
func (s *Session) WriteStep(p []byte) (Result, error) {
	s.op.Lock()
	defer s.op.Unlock()
	return s.writeStep(p)
}

func (s *Session) writeStep(p []byte) (Result, error) {
	if s.State() != StateEstablished {
		return Result{}, s.closedErr("write")
	}
	res, err := s.flush()
	if err != nil {
		return Result{}, s.fail("write", dtlserr.New(dtlserr.KindIO, "write", err))
	}
	if res.Want == WantWrite {
		return Result{Want: WantWrite}, nil
	}
	if res.N >= 0 {
		return Result{N: res.N}, nil
	}
	if len(p) == 0 {
		return Result{}, nil
	}

	n := min(len(p), s.maxFragment())
	dgram, err := s.encodeRecord(protocol.ContentTypeApplicationData, epochSealed, p[:n])
	if err != nil {
		return Result{}, s.fail("write", dtlserr.New(dtlserr.KindIO, "write", err))
	}
	s.emit(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerRecord,
		Category:  log.CategoryMessage,
		Record:    &log.RecordEvent{ContentType: uint8(protocol.ContentTypeApplicationData), Epoch: epochSealed, Seq: s.seq[epochSealed] - 1, Length: n},
	})
	want, err := s.send(dgram, n)
	if err != nil {
		return Result{}, s.fail("write", dtlserr.New(dtlserr.KindIO, "write", err))
	}
	if want == WantWrite {
		return Result{Want: WantWrite}, nil
	}
	return Result{N: n}, nil
}

// Write drives WriteStep over retry signals and returns the bytes
// accepted, which may be fewer than len(p).
func (s *Session) Write(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, dtlserr.New(dtlserr.KindIO, "write", err)
		}
		res, err := s.WriteStep(p)
		if err != nil || !res.Blocked() {
			return res.N, err
		}
		time.Sleep(blockPoll)
	}
}

// ReadStep returns the next application record in p. It reports
// PeerClosed after the peer's close_notify and ReadTimeout once the
// read deadline passes; neither fails the session. A record larger than p
// yields BufferTooSmall and stays queued.
func (s *Session) ReadStep(p []byte) (Result, error) {
	s.op.Lock()
	defer s.op.Unlock()
	return s.readStep(p)
}

func (s *Session) readStep(p []byte) (Result, error) {
	switch st := s.State(); st {
	case StateEstablished:
	case StateClosing:
		return Result{}, dtlserr.Newf(dtlserr.KindPeerClosed, "read", "peer closed the session")
	default:
		return Result{}, s.closedErr("read")
	}

	if res, err := s.flush(); err != nil {
		return Result{}, s.fail("read", dtlserr.New(dtlserr.KindIO, "read", err))
	} else if res.Want == WantWrite {
		return Result{Want: WantWrite}, nil
	}

	if res, ok, err := s.deliver(p); ok {
		return res, err
	}

	interval := s.cfg.ReadTimeout / 4
	if !s.reading {
		s.reading = true
		s.timer.Arm(interval, s.cfg.ReadTimeout)
	}
	if s.timer.FinalElapsed() {
		s.reading = false
		s.timer.Disarm()
		return Result{}, dtlserr.Newf(dtlserr.KindReadTimeout, "read", "no data within %s", s.cfg.ReadTimeout)
	}
	if s.timer.IntermediateElapsed() {
		s.timer.RearmIntermediate(interval)
	}

	if _, err := s.receive(s.timer.Remaining()); err != nil {
		if dtlserr.KindOf(err) != dtlserr.KindUnknown {
			return Result{}, err
		}
		return Result{}, s.fail("read", dtlserr.New(dtlserr.KindIO, "read", err))
	}
	if res, ok, err := s.deliver(p); ok {
		return res, err
	}
	if s.outbox != nil {
		return Result{Want: WantWrite}, nil
	}
	return Result{Want: WantRead}, nil
}

// deliver hands out a queued record or the peer close. ok is false when
// there is nothing to report.
func (s *Session) deliver(p []byte) (Result, bool, error) {
	if len(s.inbox) > 0 {
		head := s.inbox[0]
		if len(head) > len(p) {
			return Result{}, true, dtlserr.Newf(dtlserr.KindBufferTooSmall, "read",
				"record of %d bytes, buffer of %d", len(head), len(p))
		}
		n := copy(p, head)
		s.inbox[0] = nil
		s.inbox = s.inbox[1:]
		s.reading = false
		s.timer.Disarm()
		return Result{N: n}, true, nil
	}
	if s.peerClosed {
		s.reading = false
		s.timer.Disarm()
		s.setState(StateClosing, "close_notify received")
		return Result{}, true, dtlserr.Newf(dtlserr.KindPeerClosed, "read", "peer closed the session")
	}
	return Result{}, false, nil
}

// Read drives ReadStep over retry signals.
func (s *Session) Read(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.stopReading()
			return 0, dtlserr.New(dtlserr.KindIO, "read", err)
		}
		res, err := s.ReadStep(p)
		if err != nil || !res.Blocked() {
			return res.N, err
		}
		if res.Want == WantWrite {
			time.Sleep(blockPoll)
		}
	}
}

// CloseStep sends close_notify and moves to Closed. Send failures are
// ignored; the peer may already be gone.
func (s *Session) CloseStep() (Result, error) {
	s.op.Lock()
	defer s.op.Unlock()
	return s.closeStep()
}

func (s *Session) closeStep() (Result, error) {
	switch s.State() {
	case StateClosed:
		return Result{}, nil
	case StateEstablished, StateClosing:
	default:
		return Result{}, s.closedErr("close")
	}

	if res, err := s.flush(); err == nil && res.Want == WantWrite {
		return Result{Want: WantWrite}, nil
	}
	if !s.closeSent {
		s.closeSent = true
		payload, err := wire.CloseNotify.Marshal()
		if err == nil {
			var dgram []byte
			if dgram, err = s.encodeRecord(protocol.ContentTypeAlert, epochSealed, payload); err == nil {
				s.logAlert(log.DirectionOut, wire.CloseNotify)
				if want, _ := s.send(dgram, -1); want == WantWrite {
					return Result{Want: WantWrite}, nil
				}
			}
		}
	}
	s.outbox = nil
	s.reading = false
	s.timer.Disarm()
	s.setState(StateClosed, "close_notify sent")
	return Result{}, nil
}

// Close drives CloseStep for at most one second; the session is Closed
// afterwards even if close_notify never left.
func (s *Session) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()
	for {
		res, err := s.CloseStep()
		if err != nil || !res.Blocked() {
			return err
		}
		select {
		case <-ctx.Done():
			s.abandonClose()
			return nil
		case <-time.After(blockPoll):
		}
	}
}

// stopReading ends a pending read deadline after the caller gave up.
func (s *Session) stopReading() {
	s.op.Lock()
	defer s.op.Unlock()
	s.reading = false
	s.timer.Disarm()
}

func (s *Session) abandonClose() {
	s.op.Lock()
	defer s.op.Unlock()
	s.outbox = nil
	if !s.State().Terminal() {
		s.setState(StateClosed, "close_notify abandoned")
	}
}

// closedErr reports an operation attempted outside Established.
func (s *Session) closedErr(op string) error {
	st := s.State()
	if st == StateFailed && s.err != nil {
		return dtlserr.New(dtlserr.KindSessionClosed, op, s.err)
	}
	return dtlserr.Newf(dtlserr.KindSessionClosed, op, "session is %s", st)
}
