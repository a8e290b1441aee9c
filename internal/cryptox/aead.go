package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/dmitrijs2005/authvault/internal/common"
)

const nonceLength = 12

// Seal encrypts and authenticates plaintext with AES-256-GCM under key.
// A fresh random 12-byte nonce is generated for every call and prepended
// to the output, so the sealed blob layout is:
//
//	nonce (12 bytes) || ciphertext || tag (16 bytes)
func Seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a blob produced by Seal. Any tag
// mismatch yields common.ErrIntegrity: tampering, corruption, and a
// wrong key are deliberately indistinguishable.
func Open(key, blob []byte) ([]byte, error) {
	if len(blob) < nonceLength+16 {
		return nil, common.ErrIntegrity
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce, ciphertext := blob[:nonceLength], blob[nonceLength:]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrIntegrity
	}

	return plaintext, nil
}
