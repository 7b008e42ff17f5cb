// Package checksum computes the content digests used as post ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum over the bytes of s.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether an If-Match value names data. The value may be
// quoted, weak (W/"...") or a comma-separated list; "*" matches anything.
func Matches(ifMatch string, data []byte) bool {
	sum := Sum(data)
	for _, tag := range strings.Split(ifMatch, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" {
			return true
		}
		tag = strings.Trim(strings.TrimPrefix(tag, "W/"), `"`)
		if tag == sum {
			return true
		}
	}
	return false
}
