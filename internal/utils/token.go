package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenHex returns a random hex string of 2*nbytes characters.
func TokenHex(nbytes int) string {
	b := make([]byte, nbytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}
