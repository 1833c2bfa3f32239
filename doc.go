// Package authguard provides the authentication and session security engine
// for the training platform: signed JWT access tokens, rotating opaque
// refresh tokens with a revocation blacklist, an optional TOTP second factor
// with single-use backup codes, and an in-process login-attempt throttle.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authguard is the public surface. It exposes [Engine], [Builder], [Config],
// the store contracts ([UserStore], [RefreshTokenStore], [BlacklistStore]),
// and value types. The host application owns user persistence and the HTTP
// layer; it hands the engine a UserStore and either a Redis client or its
// own token stores, and maps the sentinel errors in errors.go to transport
// status codes.
//
// # What this package must NOT do
//
//   - Store or transmit TOTP secrets or backup codes in plaintext outside
//     the setup response; everything at rest goes through [Cipher].
//   - Retry infrastructure failures internally; they surface to the caller.
//   - Perform I/O during construction (Builder is allocation-only until
//     Build).
package authguard
