// Package cryptox implements the key-derivation and authenticated-encryption
// primitives used by the store and the authentication engine.
//
// Two derivation functions are used for two different jobs:
//
//   - DeriveVerifier: PBKDF2-HMAC-SHA256 with a per-record iteration count,
//     for password verifiers. The iteration count is stored next to each
//     verifier so that policy changes never invalidate historical records.
//   - DeriveMasterKey: Argon2id, for turning the installation key material
//     plus the installation salt into the store encryption key.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLength is the size of every derived key and verifier, in bytes.
	KeyLength = 32

	// SaltLength is the size of generated salts, in bytes.
	SaltLength = 32

	// DefaultIterations is the default PBKDF2 round count for new
	// password verifiers. High enough to make offline guessing costly,
	// low enough for one interactive login.
	DefaultIterations = 200000
)

// DeriveVerifier derives a 32-byte password verifier from the password,
// salt, and iteration count using PBKDF2-HMAC-SHA256. It is a pure
// function of its inputs: same inputs always produce the same output.
func DeriveVerifier(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
}

// DeriveMasterKey derives the 32-byte store encryption key from the
// installation key material and salt using Argon2id.
func DeriveMasterKey(keyMaterial, salt []byte) []byte {
	return argon2.IDKey(keyMaterial, salt, 1, 64*1024, 4, KeyLength)
}

// VerifierMatches compares a stored verifier with a freshly derived
// candidate in constant time. Never replace this with bytes.Equal:
// a fast comparison leaks match length through timing.
func VerifierMatches(verifier, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}
