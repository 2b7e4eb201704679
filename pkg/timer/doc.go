// Package timer implements the dual-deadline retransmission timer that
// drives a datagram handshake.
//
// A Timer is armed with two delays measured from the same instant:
//
//   - intermediate: when it elapses with no new peer data, the waiting
//     operation retransmits its last flight and re-arms only the
//     intermediate deadline
//   - final: when it elapses, the waiting operation gives up with a
//     timeout and the timer is disarmed
//
// The final deadline is never moved by a retransmission, so the total time
// spent waiting at one point is bounded no matter how many flights are
// resent.
//
// # Retransmission Pacing
//
// Backoff yields the intermediate delay for each successive retransmission
// of the same flight:
//
//  1. Initial delay: 1 second
//  2. Doubling: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset when a new flight is sent
//
// Jitter is off by default; it can be enabled to spread retransmissions of
// many clients behind one NAT.
package timer
