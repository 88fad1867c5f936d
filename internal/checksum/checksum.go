package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum over a string.
func String(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether want is empty or equals the checksum of s.
// An empty want skips the check.
func Matches(s, want string) bool {
	return want == "" || String(s) == want
}
