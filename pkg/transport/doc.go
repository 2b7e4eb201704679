// Package transport provides the datagram transport a session runs over.
//
// A Transport sends whole datagrams and receives them with a bounded wait.
// Loss, duplication and reordering are expected and handled above this
// layer. A send that cannot be queued right now returns ErrWouldBlock so
// the caller can retry the same datagram later.
//
// The default implementation is a connected UDP socket (DialUDP).
package transport
