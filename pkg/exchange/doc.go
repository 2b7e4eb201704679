// Package exchange runs a single request/response exchange over an
// established session, resending the whole request when a read times out.
//
// The driver is a tagged-state loop over three phases:
//
//	phaseWrite  write the request until every byte is accepted
//	phaseRead   read until data, peer close or read timeout
//	phaseDone   the response is ready
//
// A read timeout moves back to phaseWrite while retries remain and ends
// the exchange with NoResponse otherwise. A peer close ends it
// successfully with no response bytes.
package exchange
