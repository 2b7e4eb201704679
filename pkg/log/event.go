package log

import (
	"time"
)

// Event is one protocol log record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`
	LocalRole Role      `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// ServerName is the name the peer certificate is checked against.
	ServerName string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Record      *RecordEvent      `cbor:"11,keyasint,omitempty"`
	Handshake   *HandshakeEvent   `cbor:"12,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Alert       *AlertEvent       `cbor:"14,keyasint,omitempty"`
	Timer       *TimerEvent       `cbor:"15,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"16,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is raw datagrams.
	LayerTransport Layer = 0
	// LayerRecord is individual records inside datagrams.
	LayerRecord Layer = 1
	// LayerHandshake is decoded handshake messages.
	LayerHandshake Layer = 2
	// LayerSession is the session state machine.
	LayerSession Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerRecord:
		return "RECORD"
	case LayerHandshake:
		return "HANDSHAKE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryAlert   Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
	CategoryTimer   Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryAlert:
		return "ALERT"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryTimer:
		return "TIMER"
	default:
		return "UNKNOWN"
	}
}

// Role is the local end of the session.
type Role uint8

const (
	RoleClient Role = 0
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameData is the number of datagram bytes kept in a FrameEvent.
const MaxFrameData = 256

// FrameEvent captures a raw datagram.
type FrameEvent struct {
	// Size is the datagram size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the datagram, cut to MaxFrameData.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies at most MaxFrameData bytes of p.
func NewFrameEvent(p []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(p)}
	if len(p) > MaxFrameData {
		p = p[:MaxFrameData]
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), p...)
	return fe
}

// RecordEvent captures one record header.
type RecordEvent struct {
	ContentType uint8  `cbor:"1,keyasint"`
	Epoch       uint16 `cbor:"2,keyasint"`
	Seq         uint64 `cbor:"3,keyasint"`
	Length      int    `cbor:"4,keyasint"`

	// Dropped is set when the record was discarded (replay, bad MAC,
	// unexpected epoch).
	Dropped string `cbor:"5,keyasint,omitempty"`
}

// HandshakeEvent captures a handshake message.
type HandshakeEvent struct {
	Type       uint8  `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
	MessageSeq uint16 `cbor:"3,keyasint"`

	// Retransmit is set for repeated sends and duplicate receipts.
	Retransmit bool `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures session state transitions.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// AlertEvent captures an alert sent or received.
type AlertEvent struct {
	Level       uint8  `cbor:"1,keyasint"`
	Description uint8  `cbor:"2,keyasint"`
	Name        string `cbor:"3,keyasint,omitempty"`
}

// TimerKind says which deadline fired.
type TimerKind uint8

const (
	TimerIntermediate TimerKind = 0
	TimerFinal        TimerKind = 1
)

// String returns the timer kind name.
func (k TimerKind) String() string {
	switch k {
	case TimerIntermediate:
		return "INTERMEDIATE"
	case TimerFinal:
		return "FINAL"
	default:
		return "UNKNOWN"
	}
}

// TimerEvent captures a deadline expiry.
type TimerEvent struct {
	Kind TimerKind `cbor:"1,keyasint"`

	// Attempt counts retransmissions of the current flight.
	Attempt int `cbor:"2,keyasint,omitempty"`

	// Next is the delay armed after the expiry, in nanoseconds.
	Next time.Duration `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the numeric error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context names the step being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
