package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenHex returns a hex string built from n random bytes. crypto/rand
// only fails on a broken platform, so errors panic.
func TokenHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
