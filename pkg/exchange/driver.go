package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Marz6759/goldy/pkg/dtlserr"
	"github.com/Marz6759/goldy/pkg/session"
)

// DefaultMaxRetries is the number of resends after the first attempt.
const DefaultMaxRetries = 5

// blockedPoll is the pause after a WantWrite signal.
const blockedPoll = time.Millisecond

// Session is the part of session.Session the driver uses.
type Session interface {
	WriteStep(p []byte) (session.Result, error)
	ReadStep(p []byte) (session.Result, error)
}

var _ Session = (*session.Session)(nil)

// Pending is the request in flight.
type Pending struct {
	Request     []byte
	Written     int
	RetriesLeft int
	Attempts    int
}

// Response is the outcome of a successful exchange.
type Response struct {
	// Data aliases the caller's buffer. It is empty when the peer closed.
	Data       []byte
	PeerClosed bool
	Attempts   int
}

// Driver sends one request and waits for one response.
type Driver struct {
	// MaxRetries is the number of times the request is resent after a
	// read timeout. Zero disables resending.
	MaxRetries int

	// Logger receives one debug line per attempt. The zero value
	// discards.
	Logger zerolog.Logger

	// OnAttempt, when set, is called before each full send of the request.
	OnAttempt func(attempt int)
}

// NewDriver returns a driver with DefaultMaxRetries.
func NewDriver() Driver {
	return Driver{MaxRetries: DefaultMaxRetries}
}

type phase uint8

const (
	phaseWrite phase = iota
	phaseRead
	phaseDone
)

// Run writes request to sess and reads the reply into buf. Timeouts are
// retried up to MaxRetries times; other errors end the exchange.
func (d Driver) Run(ctx context.Context, sess Session, request, buf []byte) (Response, error) {
	p := &Pending{Request: request, RetriesLeft: max(d.MaxRetries, 0)}
	var resp Response

	ph := phaseWrite
	for {
		if err := ctx.Err(); err != nil {
			return Response{}, dtlserr.New(dtlserr.KindIO, "exchange", err)
		}

		switch ph {
		case phaseWrite:
			if p.Written == 0 {
				p.Attempts++
				d.Logger.Debug().Int("attempt", p.Attempts).Int("bytes", len(p.Request)).Msg("sending request")
				if d.OnAttempt != nil {
					d.OnAttempt(p.Attempts)
				}
			}
			res, err := sess.WriteStep(p.Request[p.Written:])
			if err != nil {
				return Response{}, err
			}
			if res.Blocked() || (res.N == 0 && p.Written < len(p.Request)) {
				if err := pause(ctx); err != nil {
					return Response{}, err
				}
				continue
			}
			p.Written += res.N
			if p.Written >= len(p.Request) {
				ph = phaseRead
			}

		case phaseRead:
			res, err := sess.ReadStep(buf)
			switch {
			case err == nil && !res.Blocked():
				resp = Response{Data: buf[:res.N], Attempts: p.Attempts}
				ph = phaseDone
			case err == nil:
				if res.Want == session.WantWrite {
					if err := pause(ctx); err != nil {
						return Response{}, err
					}
				}
			case dtlserr.KindOf(err) == dtlserr.KindPeerClosed:
				d.Logger.Debug().Int("attempt", p.Attempts).Msg("peer closed before responding")
				resp = Response{Data: buf[:0], PeerClosed: true, Attempts: p.Attempts}
				ph = phaseDone
			case dtlserr.KindOf(err) == dtlserr.KindReadTimeout:
				if p.RetriesLeft == 0 {
					return Response{}, dtlserr.Newf(dtlserr.KindNoResponse, "exchange",
						"no response after %d attempts", p.Attempts)
				}
				p.RetriesLeft--
				p.Written = 0
				d.Logger.Debug().Int("attempt", p.Attempts).Int("retries_left", p.RetriesLeft).Msg("read timed out, resending")
				ph = phaseWrite
			default:
				return Response{}, err
			}

		case phaseDone:
			return resp, nil
		}
	}
}

func pause(ctx context.Context) error {
	t := time.NewTimer(blockedPoll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return dtlserr.New(dtlserr.KindIO, "exchange", ctx.Err())
	case <-t.C:
		return nil
	}
}
