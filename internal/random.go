package internal

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"strings"
)

const refreshTokenBytes = 48

// NewOpaqueToken returns a random, URL-safe refresh token string. The value
// is an opaque handle with no embedded structure.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// BackupCodeAlphabet excludes 0/O/1/I to keep codes unambiguous when read
// aloud or retyped.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBackupCode returns a random code of the given length drawn from
// BackupCodeAlphabet.
func NewBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode normalizes user input before comparison: uppercase,
// separators and whitespace stripped.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// GroupSecret renders a base32 secret in space-separated chunks for manual
// authenticator entry.
func GroupSecret(secret string, size int) string {
	if size <= 0 || len(secret) <= size {
		return secret
	}
	var b strings.Builder
	b.Grow(len(secret) + len(secret)/size)
	for i := 0; i < len(secret); i += size {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + size
		if end > len(secret) {
			end = len(secret)
		}
		b.WriteString(secret[i:end])
	}
	return b.String()
}
