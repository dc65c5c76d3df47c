// Package token generates and checks the per-launch secret that a page must
// present to load its entry document and open the command channel.
package token //nolint:revive // intentional: does not conflict at import path level

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// TokenBytes is the number of random bytes used for token generation.
// 32 bytes = 256 bits of entropy.
const TokenBytes = 32

// Generate creates a new cryptographically secure random token.
// The token is 32 random bytes encoded as 64 lowercase hex characters.
func Generate() string {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read should never fail on modern systems.
		panic("crypto/rand.Read failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Equal reports whether presented matches expected in constant time.
// An empty expected token never matches.
func Equal(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
