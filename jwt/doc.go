// Package jwt wraps access-token signing and parsing for the engine.
package jwt
