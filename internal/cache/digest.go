// Package cache provides the memoization surfaces the incremental
// evaluation engine sits on: an in-memory piece cache and a disk cache,
// both keyed on piece identities.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"mason/internal/piece"
)

// Digest is a fixed 256-bit hash.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// KeyOf hashes an identity into a stable digest. Identity is a pure
// value, so the digest never changes for a given piece. The four fields
// are NUL-separated; canonical forms cannot contain NUL, which keeps the
// encoding injective.
func KeyOf(id piece.Identity) Digest {
	h := sha256.New()
	h.Write([]byte(id.Pkg.CanonicalForm()))
	h.Write([]byte{0})
	h.Write([]byte(id.DefiningLabel.CanonicalForm()))
	h.Write([]byte{0})
	h.Write([]byte(id.DefiningSymbol))
	h.Write([]byte{0})
	h.Write([]byte(id.InstanceName))
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
