// Package dtlserr classifies the errors a secure datagram session can
// surface to its caller.
//
// Every error that leaves the session engine, the request/response driver or
// the client CLI is either one of the sentinel values below or an *Error
// wrapping a cause with the failing step. Callers compare with errors.Is
// against the sentinels and use Code to print the numeric code that the
// client reports on exit.
//
// Kinds fall into three groups:
//   - fatal: TransportError, HandshakeTimeout, HandshakeFailure,
//     UntrustedPeer, NoResponse, IoError, EntropyError
//   - recoverable by the caller: ReadTimeout, BufferTooSmall
//   - signals: PeerClosed (normal termination, not a failure)
package dtlserr
