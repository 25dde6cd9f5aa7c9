package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashTextSha256 returns the hex-encoded SHA-256 of s. Content references
// (image URLs, normalized terms) are keyed by this digest.
func HashTextSha256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashReaderSha256 returns the hex-encoded SHA-256 of everything read from r.
func HashReaderSha256(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to read data: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
