package wire

import (
	"encoding/binary"

	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/recordlayer"
	"github.com/pkg/errors"
)

// Record layer constants.
const (
	// RecordHeaderLen is the fixed size of a record header.
	RecordHeaderLen = recordlayer.HeaderSize
	// MaxDatagramSize bounds every datagram sent.
	MaxDatagramSize = 1400
	// MaxSeq is the largest 48-bit record sequence number.
	MaxSeq uint64 = 1<<48 - 1
)

// Version is the protocol version written in every record and hello.
var Version = protocol.Version1_2

// Record layer errors.
var (
	ErrShortRecord  = errors.New("wire: truncated record")
	ErrBadVersion   = errors.New("wire: unsupported record version")
	ErrUnknownType  = errors.New("wire: unknown content type")
	ErrSeqExhausted = errors.New("wire: record sequence exhausted")
)

// Record is one record split out of a datagram. Raw is the whole record
// and Payload its body; both alias the datagram buffer.
type Record struct {
	Header  recordlayer.Header
	Raw     []byte
	Payload []byte
}

// RawContent is record content that is already encoded, such as a
// handshake message or one of its fragments.
type RawContent struct {
	Type protocol.ContentType
	Data []byte
}

// ContentType implements protocol.Content.
func (c *RawContent) ContentType() protocol.ContentType { return c.Type }

// Marshal implements protocol.Content.
func (c *RawContent) Marshal() ([]byte, error) { return c.Data, nil }

// Unmarshal implements protocol.Content.
func (c *RawContent) Unmarshal(data []byte) error {
	c.Data = append(c.Data[:0], data...)
	return nil
}

// NewRecord builds the record carrying content and returns it with its
// encoding. The record is what a cipher needs to protect the encoding.
func NewRecord(epoch uint16, seq uint64, content protocol.Content) (*recordlayer.RecordLayer, []byte, error) {
	if seq > MaxSeq {
		return nil, nil, ErrSeqExhausted
	}
	rec := &recordlayer.RecordLayer{
		Header: recordlayer.Header{
			Version:        Version,
			Epoch:          epoch,
			SequenceNumber: seq,
		},
		Content: content,
	}
	raw, err := rec.Marshal()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "wire: marshal %s record", ContentTypeName(content.ContentType()))
	}
	return rec, raw, nil
}

// AppendRecord appends a plaintext record to dst.
func AppendRecord(dst []byte, typ protocol.ContentType, epoch uint16, seq uint64, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return dst, errors.Errorf("wire: record payload of %d bytes", len(payload))
	}
	_, raw, err := NewRecord(epoch, seq, &RawContent{Type: typ, Data: payload})
	if err != nil {
		return dst, err
	}
	return append(dst, raw...), nil
}

// SplitRecords splits a datagram into records. A datagram whose records
// do not add up to its length is dropped whole. Records decoded before an
// unknown content type or version are returned along with the error, so
// the caller can keep what was valid.
func SplitRecords(datagram []byte) ([]Record, error) {
	raws, err := recordlayer.UnpackDatagram(datagram)
	if err != nil {
		return nil, errors.Wrap(ErrShortRecord, err.Error())
	}
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		var h recordlayer.Header
		if err := h.Unmarshal(raw); err != nil {
			return out, errors.Wrapf(ErrBadVersion, "%d.%d", raw[1], raw[2])
		}
		h.ContentLen = binary.BigEndian.Uint16(raw[RecordHeaderLen-2:])
		switch h.ContentType {
		case protocol.ContentTypeChangeCipherSpec, protocol.ContentTypeAlert,
			protocol.ContentTypeHandshake, protocol.ContentTypeApplicationData:
		default:
			return out, errors.Wrapf(ErrUnknownType, "%d", uint8(h.ContentType))
		}
		out = append(out, Record{Header: h, Raw: raw, Payload: raw[RecordHeaderLen:]})
	}
	return out, nil
}
