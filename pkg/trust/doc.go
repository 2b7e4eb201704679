// Package trust holds the trust anchors and revocation data used to verify
// a server certificate chain.
//
// A Store starts from the bundle compiled into the binary (LoadEmbedded)
// and can be extended with PEM files and CRLs. Blocks that fail to parse
// are skipped and counted, never fatal.
package trust
