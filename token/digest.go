package token

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex BLAKE2b-256 digest of a session token. Only the digest
// is kept in the session store.
func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether presented hashes to digest, in constant time.
func Matches(digest, presented string) bool {
	if digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digest), []byte(Digest(presented))) == 1
}
