// Package secrets implements the at-rest encryption boundary for
// second-factor material: AES-256-GCM authenticated encryption with
// optional PBKDF2 passphrase derivation.
package secrets
