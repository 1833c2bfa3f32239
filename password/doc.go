// Package password provides the default argon2id hashing capability. The
// engine consumes it through an interface, so hosts with an existing hash
// scheme can substitute their own implementation.
package password
