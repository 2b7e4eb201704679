// Package entropy supplies the random bytes a session needs for hello
// randoms, ephemeral keys and cookies.
//
// System reads the operating system CSPRNG directly. DRBG is a ChaCha20
// generator seeded once from another Source with a personalization string
// and rekeyed after every request, so a captured generator state does not
// reveal earlier output.
package entropy
