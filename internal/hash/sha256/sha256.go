// Package sha256 derives content-address keys from raw bytes.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements ingest.Hasher with hex-encoded SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data. Identical input always maps
// to the same key.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
