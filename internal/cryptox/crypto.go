// Package cryptox holds small hashing helpers shared by the token and
// session code.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex SHA-256 of secret. Fingerprints are what the
// database stores in place of bearer token ids.
func Fingerprint(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}
