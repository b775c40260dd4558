package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const sessionTokenSize = 32

// sessionTokenLen is the base64url (no padding) length of a session token.
var sessionTokenLen = base64.RawURLEncoding.EncodedLen(sessionTokenSize)

// NewSessionToken returns 32 random bytes, base64url encoded without padding.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// WellFormedSessionToken reports whether token could have come from NewSessionToken.
// It lets callers skip storage lookups for garbage input.
func WellFormedSessionToken(token string) bool {
	if len(token) != sessionTokenLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

// TokenDigest is the hex SHA-256 of token, used where raw tokens must not be
// stored (cache keys, audit records).
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
