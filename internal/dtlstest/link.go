package dtlstest

import (
	"context"
	"sync"
	"time"

	"github.com/Marz6759/goldy/pkg/transport"
)

// Direction names one side of a Link.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client->server"
	}
	return "server->client"
}

// Action is what a Script does with one datagram.
type Action uint8

const (
	Deliver Action = iota
	Drop
	Duplicate
)

// Script decides the fate of the index-th datagram (zero based) sent in
// direction dir. A nil Script delivers everything.
type Script func(dir Direction, index int, dgram []byte) Action

// DropFirst drops the first n datagrams sent in dir.
func DropFirst(dir Direction, n int) Script {
	return func(d Direction, i int, _ []byte) Action {
		if d == dir && i < n {
			return Drop
		}
		return Deliver
	}
}

// DropIndices drops the listed datagrams sent in dir.
func DropIndices(dir Direction, indices ...int) Script {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return func(d Direction, i int, _ []byte) Action {
		if d == dir && set[i] {
			return Drop
		}
		return Deliver
	}
}

// DropAll drops everything sent in dir.
func DropAll(dir Direction) Script {
	return func(d Direction, _ int, _ []byte) Action {
		if d == dir {
			return Drop
		}
		return Deliver
	}
}

// DuplicateAll delivers every datagram sent in dir twice.
func DuplicateAll(dir Direction) Script {
	return func(d Direction, _ int, _ []byte) Action {
		if d == dir {
			return Duplicate
		}
		return Deliver
	}
}

// Chain applies scripts in order; the first non-Deliver action wins.
func Chain(scripts ...Script) Script {
	return func(d Direction, i int, p []byte) Action {
		for _, s := range scripts {
			if s == nil {
				continue
			}
			if a := s(d, i, p); a != Deliver {
				return a
			}
		}
		return Deliver
	}
}

// queueLen bounds each endpoint's receive queue; overflow is dropped like
// a full socket buffer.
const queueLen = 256

// Endpoint is one side of a Link. It implements transport.Transport.
type Endpoint struct {
	dir    Direction
	link   *link
	in     chan []byte
	done   chan struct{}
	remote *Endpoint

	mu         sync.Mutex
	closed     bool
	closeCalls int
	wouldBlock int
	sent       int
	dropped    int
}

type link struct {
	mu     sync.Mutex
	script Script
}

// NewLink returns two connected endpoints. Datagrams pass through script.
func NewLink(script Script) (client, server *Endpoint) {
	l := &link{script: script}
	client = &Endpoint{dir: ClientToServer, link: l, in: make(chan []byte, queueLen), done: make(chan struct{})}
	server = &Endpoint{dir: ServerToClient, link: l, in: make(chan []byte, queueLen), done: make(chan struct{})}
	client.remote, server.remote = server, client
	return client, server
}

// SetScript replaces the link script.
func (e *Endpoint) SetScript(s Script) {
	e.link.mu.Lock()
	e.link.script = s
	e.link.mu.Unlock()
}

// InjectWouldBlock makes the next n sends fail with transport.ErrWouldBlock.
func (e *Endpoint) InjectWouldBlock(n int) {
	e.mu.Lock()
	e.wouldBlock = n
	e.mu.Unlock()
}

// Send implements transport.Transport.
func (e *Endpoint) Send(p []byte) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, transport.ErrClosed
	}
	if e.wouldBlock > 0 {
		e.wouldBlock--
		e.mu.Unlock()
		return 0, transport.ErrWouldBlock
	}
	index := e.sent
	e.sent++
	e.mu.Unlock()

	e.link.mu.Lock()
	script := e.link.script
	e.link.mu.Unlock()

	action := Deliver
	if script != nil {
		action = script(e.dir, index, p)
	}
	switch action {
	case Drop:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	case Duplicate:
		e.remote.enqueue(p)
		e.remote.enqueue(p)
	default:
		e.remote.enqueue(p)
	}
	return len(p), nil
}

func (e *Endpoint) enqueue(p []byte) {
	select {
	case e.in <- append([]byte(nil), p...):
	default:
	}
}

// RecvTimeout implements transport.Transport.
func (e *Endpoint) RecvTimeout(p []byte, d time.Duration) (int, bool, error) {
	select {
	case <-e.done:
		return 0, false, transport.ErrClosed
	default:
	}
	if d <= 0 {
		select {
		case msg := <-e.in:
			return copy(p, msg), false, nil
		default:
			return 0, true, nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case msg := <-e.in:
		return copy(p, msg), false, nil
	case <-t.C:
		return 0, true, nil
	case <-e.done:
		return 0, false, transport.ErrClosed
	}
}

// Close implements transport.Transport. Calls after the first return
// transport.ErrClosed.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCalls++
	if e.closed {
		return transport.ErrClosed
	}
	e.closed = true
	close(e.done)
	return nil
}

// CloseCalls returns how many times Close was called.
func (e *Endpoint) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}

// Sent returns the number of datagrams passed to Send, dropped ones
// included.
func (e *Endpoint) Sent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

// Dropped returns the number of datagrams the script dropped.
func (e *Endpoint) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Dialer returns a dialer that hands out e regardless of the address.
func (e *Endpoint) Dialer() transport.Dialer {
	return func(context.Context, string, string) (transport.Transport, error) {
		return e, nil
	}
}

var _ transport.Transport = (*Endpoint)(nil)
