// Package cryptox holds the password and token primitives of the
// development server: argon2id password verifiers and random hex tokens.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length in bytes of a freshly generated salt.
const SaltSize = 32

// DeriveKey stretches password with argon2id.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier returns the value stored in place of a password: the
// SHA-256 of its argon2id key.
func MakeVerifier(password, salt []byte) []byte {
	key := DeriveKey(password, salt)
	defer WipeByteArray(key)

	hash := sha256.Sum256(key)
	return hash[:]
}

// CheckPassword reports whether password produces verifier under salt.
// The comparison runs in constant time.
func CheckPassword(password, salt, verifier []byte) bool {
	return subtle.ConstantTimeCompare(MakeVerifier(password, salt), verifier) == 1
}

// RandBytes returns size bytes from crypto/rand.
func RandBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MakeRandHexString returns size random bytes hex-encoded, so the string
// is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b, err := RandBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray zeroes b. A nil slice is ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
