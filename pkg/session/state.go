package session

// State is the lifecycle state of a Session.
type State uint8

const (
	StateIdle State = iota
	StateHandshaking
	StateEstablished
	StateClosing
	StateClosed
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Want is the retry signal of a step.
type Want uint8

const (
	// WantNone means the step completed or made progress.
	WantNone Want = iota
	// WantRead means the step is waiting for peer data.
	WantRead
	// WantWrite means the transport could not accept a datagram yet.
	WantWrite
)

// String returns the signal name.
func (w Want) String() string {
	switch w {
	case WantNone:
		return "none"
	case WantRead:
		return "want-read"
	case WantWrite:
		return "want-write"
	default:
		return "unknown"
	}
}

// Result is the outcome of one step.
type Result struct {
	// N is the number of application bytes written or read.
	N int
	// Want is the retry signal.
	Want Want
}

// Blocked reports whether the step must be retried.
func (r Result) Blocked() bool { return r.Want != WantNone }
