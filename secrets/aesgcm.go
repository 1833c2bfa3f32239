package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// encryptedPrefix marks a value as ciphertext
	// (format: ENC:base64(nonce|ciphertext|tag)).
	encryptedPrefix = "ENC:"

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// nonceSize is the AES-GCM nonce length in bytes.
	nonceSize = 12

	// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA-256.
	pbkdf2Iterations = 600000
)

var (
	// ErrInvalidKeySize indicates the key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")
	// ErrInvalidCiphertext indicates the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed indicates a wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// AESCipher provides AES-256-GCM authenticated encryption for small secret
// payloads at rest. It is safe for concurrent use.
type AESCipher struct {
	aead cipher.AEAD
}

// NewAESCipher builds a cipher around a 32-byte key.
func NewAESCipher(key []byte) (*AESCipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESCipher{aead: aead}, nil
}

// DeriveKey stretches a passphrase into a 32-byte key with PBKDF2-SHA-256.
// The salt must be stored alongside whatever the key protects.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, KeySize, sha256.New)
}

// Encrypt seals the plaintext under a fresh random nonce and returns the
// prefixed, base64-encoded ciphertext.
func (c *AESCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	payload := make([]byte, 0, len(nonce)+len(sealed))
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return encryptedPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt opens a value produced by Encrypt. Tampered or foreign input
// fails with ErrInvalidCiphertext or ErrDecryptionFailed.
func (c *AESCipher) Decrypt(ciphertext string) ([]byte, error) {
	if len(ciphertext) <= len(encryptedPrefix) || ciphertext[:len(encryptedPrefix)] != encryptedPrefix {
		return nil, ErrInvalidCiphertext
	}

	payload, err := base64.StdEncoding.DecodeString(ciphertext[len(encryptedPrefix):])
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	if len(payload) < nonceSize+c.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	plaintext, err := c.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
