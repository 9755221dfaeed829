package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// sessionTokenBytes is the entropy of a session token. 32 bytes keeps tokens
// unguessable (256 bits) and hex encoding fixes the wire length at 64 chars.
const sessionTokenBytes = 32

// GenerateRandomBytes returns the requested number of bytes using crypto/rand
func GenerateRandomBytes(length int) ([]byte, error) {
	var randomBytes = make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, err
	}
	return randomBytes, nil
}

// GenerateSessionToken returns a fresh opaque session token.
func GenerateSessionToken() (string, error) {
	randomBytes, err := GenerateRandomBytes(sessionTokenBytes)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(randomBytes), nil
}

// ValidSessionTokenShape reports whether a candidate token has the length and
// charset of a generated token. Obviously malformed input is rejected before
// any store lookup happens.
func ValidSessionTokenShape(token string) bool {
	if len(token) != sessionTokenBytes*2 {
		return false
	}
	for _, c := range token {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
