package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives a cache key from the parts identifying a build: language,
// source, target and options. Parts are separated so that ("ab", "c") and
// ("a", "bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
