package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintRefreshToken returns the hex-encoded SHA-256 of a refresh token.
// Only fingerprints are stored; the raw token never reaches the ledger.
func FingerprintRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
