package internal

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidSessionID is returned by ParseSessionID for anything that is not
// a canonical random (version 4) UUID.
var ErrInvalidSessionID = errors.New("invalid session id")

// NewSessionID returns a fresh UUIDv4 in canonical form. 122 of its 128 bits
// come from crypto/rand.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseSessionID checks that s is a canonical UUIDv4 and returns it
// lower-cased.
func ParseSessionID(s string) (string, error) {
	if len(s) != 36 {
		return "", ErrInvalidSessionID
	}
	id, err := uuid.Parse(s)
	if err != nil || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return "", ErrInvalidSessionID
	}
	return id.String(), nil
}

// HashToken returns the SHA-256 digest used wherever a token must be stored
// or keyed without keeping the raw value.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// EqualHash compares two digests in constant time.
func EqualHash(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
