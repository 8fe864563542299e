// Package sha256 derives stable, filesystem-safe names from store keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyHasher maps arbitrary keys (usually URLs) onto hex SHA-256 digests.
type KeyHasher struct {
	// Extension is appended to every digest, e.g. ".json".
	Extension string
}

// New returns a KeyHasher that appends ext to each name.
func New(ext string) *KeyHasher {
	return &KeyHasher{Extension: ext}
}

// Name returns the digest of key followed by the configured extension.
func (h *KeyHasher) Name(key string) string {
	return Digest([]byte(key)) + h.Extension
}

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
