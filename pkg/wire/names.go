package wire

import (
	"fmt"

	"github.com/pion/dtls/v2/pkg/protocol"
	"github.com/pion/dtls/v2/pkg/protocol/alert"
	"github.com/pion/dtls/v2/pkg/protocol/handshake"
	"github.com/pkg/errors"
)

// CloseNotify is the alert sent on graceful shutdown.
var CloseNotify = alert.Alert{Level: alert.Warning, Description: alert.CloseNotify}

// ContentTypeName returns the log name of a record content type.
func ContentTypeName(t protocol.ContentType) string {
	switch t {
	case protocol.ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case protocol.ContentTypeAlert:
		return "alert"
	case protocol.ContentTypeHandshake:
		return "handshake"
	case protocol.ContentTypeApplicationData:
		return "application_data"
	default:
		return fmt.Sprintf("content(%d)", uint8(t))
	}
}

// HandshakeName returns the log name of a handshake message type.
func HandshakeName(t handshake.Type) string {
	switch t {
	case handshake.TypeHelloRequest:
		return "hello_request"
	case handshake.TypeClientHello:
		return "client_hello"
	case handshake.TypeServerHello:
		return "server_hello"
	case handshake.TypeHelloVerifyRequest:
		return "hello_verify_request"
	case handshake.TypeCertificate:
		return "certificate"
	case handshake.TypeServerKeyExchange:
		return "server_key_exchange"
	case handshake.TypeCertificateRequest:
		return "certificate_request"
	case handshake.TypeServerHelloDone:
		return "server_hello_done"
	case handshake.TypeCertificateVerify:
		return "certificate_verify"
	case handshake.TypeClientKeyExchange:
		return "client_key_exchange"
	case handshake.TypeFinished:
		return "finished"
	default:
		return fmt.Sprintf("handshake(%d)", uint8(t))
	}
}

var alertNames = map[alert.Description]string{
	alert.CloseNotify:            "close_notify",
	alert.UnexpectedMessage:      "unexpected_message",
	alert.BadRecordMac:           "bad_record_mac",
	alert.RecordOverflow:         "record_overflow",
	alert.HandshakeFailure:       "handshake_failure",
	alert.BadCertificate:         "bad_certificate",
	alert.UnsupportedCertificate: "unsupported_certificate",
	alert.CertificateRevoked:     "certificate_revoked",
	alert.CertificateExpired:     "certificate_expired",
	alert.CertificateUnknown:     "certificate_unknown",
	alert.IllegalParameter:       "illegal_parameter",
	alert.UnknownCA:              "unknown_ca",
	alert.AccessDenied:           "access_denied",
	alert.DecodeError:            "decode_error",
	alert.DecryptError:           "decrypt_error",
	alert.ProtocolVersion:        "protocol_version",
	alert.InsufficientSecurity:   "insufficient_security",
	alert.InternalError:          "internal_error",
	alert.UserCanceled:           "user_canceled",
	alert.NoRenegotiation:        "no_renegotiation",
	alert.UnsupportedExtension:   "unsupported_extension",
}

// AlertName returns the log name of an alert description.
func AlertName(d alert.Description) string {
	if name, ok := alertNames[d]; ok {
		return name
	}
	return fmt.Sprintf("alert(%d)", uint8(d))
}

// AlertString renders a as "close_notify" or "fatal decrypt_error".
func AlertString(a alert.Alert) string {
	if a.Level == alert.Fatal {
		return "fatal " + AlertName(a.Description)
	}
	return AlertName(a.Description)
}

// ParseAlert decodes an alert record payload.
func ParseAlert(b []byte) (alert.Alert, error) {
	var a alert.Alert
	if err := a.Unmarshal(b); err != nil {
		return a, errors.Wrapf(err, "wire: alert of %d bytes", len(b))
	}
	return a, nil
}
