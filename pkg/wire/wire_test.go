package wire

import (
	"bytes"
	"testing"

	"github.com/pion/dtls/v2/pkg/crypto/elliptic"
	"github.com/pion/dtls/v2/pkg/crypto/hash"
	"github.com/pion/dtls/v2/pkg/crypto/signature"
	"github.com/pion/dtls/v2/pkg/crypto/signaturehash"
	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pion/dtls/v2/pkg/protocol/extension"
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"
)

func TestRecordHeader(t *testing.T) {
	_, raw, err := NewRecord(1, 0x0102030405, &RawContent{Type: protocol.ContentTypeHandshake, Data: make([]byte, 300)})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	want := []byte{22, 0xFE, 0xFD, 0, 1, 0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x01, 0x2C}
	if !bytes.Equal(raw[:RecordHeaderLen], want) {
		t.Errorf("encoded header = % x, want % x", raw[:RecordHeaderLen], want)
	}

	recs, err := SplitRecords(raw)
	if err != nil {
		t.Fatalf("SplitRecords: %v", err)
	}
	h := recs[0].Header
	if h.Epoch != 1 || h.SequenceNumber != 0x0102030405 || h.ContentLen != 300 || !h.Version.Equal(Version) {
		t.Errorf("decoded header = %+v", h)
	}
}

func TestSplitRecords(t *testing.T) {
	var dgram []byte
	dgram, _ = AppendRecord(dgram, protocol.ContentTypeHandshake, 0, 0, []byte("one"))
	dgram, _ = AppendRecord(dgram, protocol.ContentTypeHandshake, 0, 1, []byte("two"))
	dgram, _ = AppendRecord(dgram, protocol.ContentTypeChangeCipherSpec, 0, 2, []byte{1})

	recs, err := SplitRecords(dgram)
	if err != nil {
		t.Fatalf("SplitRecords: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if string(recs[1].Payload) != "two" || recs[1].Header.SequenceNumber != 1 {
		t.Errorf("second record = %+v", recs[1])
	}
	if len(recs[2].Raw) != RecordHeaderLen+1 {
		t.Errorf("third record raw length = %d", len(recs[2].Raw))
	}

	if recs, err := SplitRecords(dgram[:len(dgram)-3]); !errors.Is(err, ErrShortRecord) || recs != nil {
		t.Errorf("truncated datagram = %d records, error %v", len(recs), err)
	}

	bad, _ := AppendRecord(append([]byte(nil), dgram...), protocol.ContentTypeAlert, 0, 3, []byte{1, 0})
	bad[len(dgram)] = 99
	recs, err = SplitRecords(bad)
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type error = %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d records before the unknown one, want 3", len(recs))
	}

	old, _ := AppendRecord(nil, protocol.ContentTypeHandshake, 0, 0, []byte("x"))
	old[1], old[2] = 0x03, 0x03
	if _, err := SplitRecords(old); !errors.Is(err, ErrBadVersion) {
		t.Errorf("version error = %v", err)
	}
}

func TestNewRecordSeqExhausted(t *testing.T) {
	if _, _, err := NewRecord(1, MaxSeq+1, &protocol.ApplicationData{}); !errors.Is(err, ErrSeqExhausted) {
		t.Errorf("error = %v, want ErrSeqExhausted", err)
	}
}

func TestClientHello(t *testing.T) {
	ch := &handshake.MessageClientHello{
		Version:            Version,
		Cookie:             []byte{1, 2, 3},
		CipherSuiteIDs:     []uint16{0xC02B, 0xCCA9},
		CompressionMethods: []*protocol.CompressionMethod{{}},
		Extensions: []extension.Extension{
			&extension.ServerName{ServerName: "localhost"},
			&extension.SupportedEllipticCurves{EllipticCurves: []elliptic.Curve{elliptic.X25519}},
			&extension.UseExtendedMasterSecret{Supported: true},
		},
	}
	raw, err := EncodeHandshake(1, ch)
	if err != nil {
		t.Fatalf("EncodeHandshake: %v", err)
	}
	h, m, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if h.Type != handshake.TypeClientHello || h.MessageSequence != 1 || int(h.Length) != len(raw)-HandshakeHeaderLen {
		t.Errorf("header = %+v", h)
	}
	got, ok := m.(*handshake.MessageClientHello)
	if !ok {
		t.Fatalf("message is %T", m)
	}
	if !bytes.Equal(got.Cookie, ch.Cookie) || len(got.CipherSuiteIDs) != 2 || len(got.Extensions) != 3 {
		t.Errorf("decoded %+v", got)
	}
}

func TestKeyExchangeEncoding(t *testing.T) {
	ske := &ServerKeyExchange{
		Curve:     elliptic.X25519,
		PublicKey: []byte{0xAA, 0xBB},
		Algorithm: signaturehash.Algorithm{Hash: hash.SHA256, Signature: signature.ECDSA},
		Signature: []byte{0x30, 0x00},
	}
	if want := []byte{3, 0x00, 0x1D, 2, 0xAA, 0xBB}; !bytes.Equal(ske.Params(), want) {
		t.Errorf("Params() = % x, want % x", ske.Params(), want)
	}
	body, err := ske.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{3, 0x00, 0x1D, 2, 0xAA, 0xBB, 4, 3, 0, 2, 0x30, 0x00}; !bytes.Equal(body, want) {
		t.Errorf("body = % x, want % x", body, want)
	}
	var back ServerKeyExchange
	if err := back.Unmarshal(body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Curve != elliptic.X25519 || back.Algorithm != ske.Algorithm {
		t.Errorf("decoded %+v", back)
	}
	if err := back.Unmarshal(body[:len(body)-1]); !errors.Is(err, ErrMalformed) {
		t.Errorf("truncated error = %v", err)
	}
	body[0] = 1
	if err := back.Unmarshal(body); !errors.Is(err, ErrMalformed) {
		t.Errorf("explicit curve error = %v", err)
	}

	cke, err := (&ClientKeyExchange{PublicKey: []byte{9, 8, 7}}).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{3, 9, 8, 7}; !bytes.Equal(cke, want) {
		t.Errorf("client_key_exchange = % x, want % x", cke, want)
	}
	if err := new(ClientKeyExchange).Unmarshal([]byte{0}); !errors.Is(err, ErrMalformed) {
		t.Errorf("empty share error = %v", err)
	}
}

func TestParseMessageErrors(t *testing.T) {
	fin, _ := EncodeHandshake(0, &handshake.MessageFinished{VerifyData: make([]byte, 12)})

	unknown := append([]byte(nil), fin...)
	unknown[0] = 99
	short := fin[:len(fin)-1]

	for name, raw := range map[string][]byte{
		"unknown type":    unknown,
		"short body":      short,
		"short header":    fin[:5],
		"fragment header": fragmentOf(fin, 0, 4),
	} {
		if _, _, err := ParseMessage(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: error = %v, want ErrMalformed", name, err)
		}
	}
}

// fragmentOf cuts bytes [off, off+n) of the body of the complete message
// raw into a fragment.
func fragmentOf(raw []byte, off, n int) []byte {
	var h handshake.Header
	_ = h.Unmarshal(raw)
	h.FragmentOffset = uint32(off)
	h.FragmentLength = uint32(n)
	hdr, _ := h.Marshal()
	body := raw[HandshakeHeaderLen:]
	return append(hdr, body[off:off+n]...)
}

func TestReassembler(t *testing.T) {
	cert := &handshake.MessageCertificate{Certificate: [][]byte{bytes.Repeat([]byte{0x30}, 200)}}
	raw, err := EncodeHandshake(2, cert)
	if err != nil {
		t.Fatalf("EncodeHandshake: %v", err)
	}
	total := len(raw) - HandshakeHeaderLen

	// Out of order, with the last piece overlapping both others.
	payload := append(fragmentOf(raw, 150, total-150), fragmentOf(raw, 0, 100)...)
	frags, err := SplitFragments(payload)
	if err != nil {
		t.Fatalf("SplitFragments: %v", err)
	}
	if len(frags) != 2 || frags[0].Complete() {
		t.Fatalf("fragments = %+v", frags)
	}

	var r Reassembler
	for _, f := range frags {
		if _, done, err := r.Push(f); err != nil || done {
			t.Fatalf("Push = %v, %v", done, err)
		}
	}
	mid, _ := SplitFragments(fragmentOf(raw, 90, 70))
	got, done, err := r.Push(mid[0])
	if err != nil || !done {
		t.Fatalf("Push = %v, %v", done, err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("reassembled = % x, want % x", got, raw)
	}
	if _, _, err := ParseMessage(got); err != nil {
		t.Errorf("ParseMessage: %v", err)
	}

	r.Reset()
	first, _ := SplitFragments(fragmentOf(raw, 0, 10))
	if _, _, err := r.Push(first[0]); err != nil {
		t.Fatalf("Push: %v", err)
	}
	bad, _ := SplitFragments(fragmentOf(raw, 10, 10))
	bad[0].Header.Type = handshake.TypeFinished
	if _, _, err := r.Push(bad[0]); !errors.Is(err, ErrMalformed) {
		t.Errorf("shape change error = %v", err)
	}
}

func TestSplitFragmentsOverrun(t *testing.T) {
	fin, _ := EncodeHandshake(0, &handshake.MessageFinished{VerifyData: make([]byte, 12)})
	if _, err := SplitFragments(fin[:len(fin)-2]); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestAlertNames(t *testing.T) {
	a, err := ParseAlert([]byte{2, 51})
	if err != nil {
		t.Fatalf("ParseAlert: %v", err)
	}
	if got := AlertString(a); got != "fatal decrypt_error" {
		t.Errorf("AlertString = %q", got)
	}
	if got := AlertString(CloseNotify); got != "close_notify" {
		t.Errorf("AlertString(CloseNotify) = %q", got)
	}
	if got := AlertName(alert.Description(200)); got != "alert(200)" {
		t.Errorf("AlertName = %q", got)
	}
	if _, err := ParseAlert([]byte{1}); err == nil {
		t.Error("expected error for short alert")
	}
	if got := HandshakeName(handshake.TypeServerKeyExchange); got != "server_key_exchange" {
		t.Errorf("HandshakeName = %q", got)
	}
	if got := ContentTypeName(protocol.ContentTypeApplicationData); got != "application_data" {
		t.Errorf("ContentTypeName = %q", got)
	}
}
