// Package id generates random hex identifiers and tokens using crypto/rand.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a random 16-hex-character session id (64 bits of entropy).
func New() (string, error) {
	return hexString(8)
}

// NewToken returns a random 64-hex-character token (256 bits of entropy),
// suitable for a session token or a hub master token.
func NewToken() (string, error) {
	return hexString(32)
}

func hexString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
