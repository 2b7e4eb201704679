package wire

import (
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"
)

// HandshakeHeaderLen is the fixed size of a handshake header.
const HandshakeHeaderLen = handshake.HeaderLength

// MaxMessageLen bounds a reassembled handshake message.
const MaxMessageLen = 1 << 17

// ErrMalformed reports a handshake message that does not decode.
var ErrMalformed = errors.New("wire: malformed handshake message")

// EncodeHandshake encodes m as a single unfragmented handshake message
// with message sequence seq. The result is both the record payload and
// the transcript input.
func EncodeHandshake(seq uint16, m handshake.Message) ([]byte, error) {
	h := handshake.Handshake{
		Header:  handshake.Header{MessageSequence: seq},
		Message: m,
	}
	raw, err := h.Marshal()
	if err != nil {
		return nil, errors.Wrapf(err, "wire: encode %s", HandshakeName(m.Type()))
	}
	return raw, nil
}

// ParseMessage decodes a complete handshake message as produced by
// EncodeHandshake or Reassembler.Push.
func ParseMessage(raw []byte) (handshake.Header, handshake.Message, error) {
	var h handshake.Header
	if err := h.Unmarshal(raw); err != nil {
		return h, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	body := raw[HandshakeHeaderLen:]
	if h.FragmentOffset != 0 || h.FragmentLength != h.Length || int(h.Length) != len(body) {
		return h, nil, errors.Wrapf(ErrMalformed, "%s is fragmented", HandshakeName(h.Type))
	}

	var m handshake.Message
	switch h.Type {
	case handshake.TypeClientHello:
		m = &handshake.MessageClientHello{}
	case handshake.TypeHelloVerifyRequest:
		m = &handshake.MessageHelloVerifyRequest{}
	case handshake.TypeServerHello:
		m = &handshake.MessageServerHello{}
	case handshake.TypeCertificate:
		m = &handshake.MessageCertificate{}
	case handshake.TypeServerKeyExchange:
		m = &ServerKeyExchange{}
	case handshake.TypeCertificateRequest:
		m = &handshake.MessageCertificateRequest{}
	case handshake.TypeServerHelloDone:
		m = &handshake.MessageServerHelloDone{}
	case handshake.TypeClientKeyExchange:
		m = &ClientKeyExchange{}
	case handshake.TypeFinished:
		m = &handshake.MessageFinished{}
	default:
		return h, nil, errors.Wrapf(ErrMalformed, "unknown type %d", uint8(h.Type))
	}
	if err := m.Unmarshal(body); err != nil {
		return h, nil, errors.Wrapf(ErrMalformed, "%s: %v", HandshakeName(h.Type), err)
	}
	return h, m, nil
}

// Fragment is one handshake fragment of a record. Data aliases the record.
type Fragment struct {
	Header handshake.Header
	Data   []byte
}

// Complete reports whether the fragment carries the whole message.
func (f Fragment) Complete() bool {
	return f.Header.FragmentOffset == 0 && f.Header.FragmentLength == f.Header.Length
}

// SplitFragments splits a handshake record payload into fragments.
func SplitFragments(payload []byte) ([]Fragment, error) {
	var out []Fragment
	for len(payload) > 0 {
		var h handshake.Header
		if err := h.Unmarshal(payload); err != nil {
			return out, errors.Wrap(ErrMalformed, err.Error())
		}
		end := HandshakeHeaderLen + int(h.FragmentLength)
		switch {
		case end > len(payload):
			return out, errors.Wrap(ErrMalformed, "fragment overruns record")
		case h.FragmentOffset+h.FragmentLength > h.Length:
			return out, errors.Wrap(ErrMalformed, "fragment overruns message")
		case h.Length > MaxMessageLen:
			return out, errors.Wrapf(ErrMalformed, "message of %d bytes", h.Length)
		}
		out = append(out, Fragment{Header: h, Data: payload[HandshakeHeaderLen:end]})
		payload = payload[end:]
	}
	return out, nil
}

// Reassembler collects fragments into complete handshake messages, keyed
// by message sequence.
type Reassembler struct {
	pending map[uint16]*partial
}

type partial struct {
	typ     handshake.Type
	body    []byte
	covered []bool
	missing int
}

// Push adds f and returns the complete message once every byte of it has
// arrived. Overlapping and repeated fragments are accepted; a fragment
// that disagrees with earlier ones about type or length is not.
func (r *Reassembler) Push(f Fragment) ([]byte, bool, error) {
	h := f.Header
	if f.Complete() {
		delete(r.pending, h.MessageSequence)
		return joinMessage(h, f.Data), true, nil
	}
	if r.pending == nil {
		r.pending = make(map[uint16]*partial)
	}
	p, ok := r.pending[h.MessageSequence]
	if !ok {
		p = &partial{
			typ:     h.Type,
			body:    make([]byte, h.Length),
			covered: make([]bool, h.Length),
			missing: int(h.Length),
		}
		r.pending[h.MessageSequence] = p
	}
	if p.typ != h.Type || len(p.body) != int(h.Length) {
		return nil, false, errors.Wrapf(ErrMalformed, "fragment of message %d changes its shape", h.MessageSequence)
	}
	off := int(h.FragmentOffset)
	copy(p.body[off:], f.Data)
	for i := off; i < off+len(f.Data); i++ {
		if !p.covered[i] {
			p.covered[i] = true
			p.missing--
		}
	}
	if p.missing > 0 {
		return nil, false, nil
	}
	delete(r.pending, h.MessageSequence)
	return joinMessage(h, p.body), true, nil
}

// Discard drops partial messages with a sequence below seq.
func (r *Reassembler) Discard(seq uint16) {
	for s := range r.pending {
		if s < seq {
			delete(r.pending, s)
		}
	}
}

// Reset drops every partial message.
func (r *Reassembler) Reset() {
	r.pending = nil
}

func joinMessage(h handshake.Header, body []byte) []byte {
	h.FragmentOffset = 0
	h.FragmentLength = h.Length
	hdr, _ := h.Marshal()
	out := make([]byte, 0, len(hdr)+len(body))
	out = append(out, hdr...)
	return append(out, body...)
}
