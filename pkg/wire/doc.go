// Package wire frames DTLS 1.2 records and handshake messages.
//
// The encodings come from github.com/pion/dtls/v2: recordlayer for the
// 13-byte record header and datagram splitting, handshake for the 12-byte
// handshake header and the hello, certificate and finished bodies. This
// package adds what the session needs on top: fragment reassembly, the
// ECDHE key exchange bodies and the snake_case names used in logs.
//
//	record:    type(1) version(2) epoch(2) sequence(6) length(2) payload
//	handshake: type(1) length(3) message_seq(2) frag_offset(3) frag_length(3) body
//
// A handshake message whose fragment covers the whole body is the form fed
// to the transcript and to the Finished computation.
package wire
