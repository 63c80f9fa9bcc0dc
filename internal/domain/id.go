package domain

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a fresh 24-char lowercase hex identifier.
func NewID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("domain: reading random bytes: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
