package cluster

import (
	"crypto/rand"
	"io"
)

// randBytes fills and returns a slice of n cryptographically random bytes.
// Unlike the teacher's rand16 helper (used only for jitter, with a
// math/rand fallback), this always reads from crypto/rand and panics rather
// than silently falling back to a weaker source, since every caller in this
// package needs the result to be unpredictable key material, not jitter.
func randBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic("cluster: failed to read random bytes: " + err.Error())
	}
	return buf
}

// GenerateMasterSecret returns fresh random master-secret material sized
// for Config.MasterSecret, for callers (tests, the demo CLI) that don't
// already have one derived from a host identity's private key.
func GenerateMasterSecret() [64]byte {
	var secret [64]byte
	copy(secret[:], randBytes(64))
	return secret
}
