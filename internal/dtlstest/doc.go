// Package dtlstest provides test infrastructure for sessions: throwaway
// certificate authorities, an in-memory datagram link that can drop,
// duplicate or delay datagrams on a script, and an echo peer that speaks
// the server side of the handshake.
package dtlstest
