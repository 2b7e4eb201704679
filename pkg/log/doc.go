// Package log provides structured protocol logging for sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol events at several layers (transport, record, handshake,
// session). It is separate from operational logging (zerolog): the
// protocol log is a complete machine-readable trace of one session.
//
// # Basic Usage
//
//	// Console: protocol events as zerolog debug lines
//	sess.Logger = log.NewZerologAdapter(zl)
//
//	// File: CBOR event stream
//	fl, _ := log.NewFileLogger("session.dlog")
//	sess.Logger = log.NewMultiLogger(log.NewZerologAdapter(zl), fl)
//
// # File Format
//
// Log files are a plain sequence of CBOR encoded events with integer
// keys, conventionally named *.dlog. The dtls-log tool views them and
// prints statistics.
package log
