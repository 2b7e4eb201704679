// Package verify turns a server certificate chain into a set of failure
// reasons (Flags) and decides, under a Strictness, whether a session may
// carry application data.
//
// Check does the certificate work once, after the handshake. Evaluate is
// a pure function of its inputs; the session engine never calls it.
package verify
