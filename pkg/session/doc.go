// Package session implements the client side of a DTLS 1.2 session:
// connect, configure, handshake, verify, write, read, close and release.
//
// The handshake is the ECDHE exchange with a certificate-authenticated
// server, a HelloVerifyRequest cookie round trip and the extended master
// secret when the server agrees. Records, handshake messages, the PRF and
// the AES-GCM suites come from github.com/pion/dtls/v2.
//
// # Retry Signals
//
// Every I/O step returns a Result alongside its error. Result.Want tells
// the caller what the step is waiting for:
//
//	WantNone   the step made progress (Result.N bytes for reads/writes)
//	WantRead   no peer data arrived within the current deadline slice
//	WantWrite  the transport could not take a datagram; call again
//
// The step functions (HandshakeStep, WriteStep, ReadStep, CloseStep)
// never block for longer than the session timer allows. Handshake, Write,
// Read and Close loop over them until a final outcome or until the
// context is done.
//
// # Timers
//
// One timer.Timer paces the session. During the handshake its
// intermediate deadline triggers flight retransmission with exponential
// backoff and its final deadline fails the handshake. A server repeating
// an earlier flight also triggers one retransmission. While reading, only
// the final deadline matters: it reports a read timeout.
//
// # Concurrency
//
// Steps hold the session lock. Release may be called from another
// goroutine at any time; it waits for the step in progress and the
// driving loop then reports the session closed.
//
// # State
//
//	Idle -> Handshaking -> Established -> Closing -> Closed
//
// Any non-terminal state can move to Failed. Application data is only
// sent or accepted in Established.
package session
