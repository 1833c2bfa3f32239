// Package redistore implements the authguard refresh-token and blacklist
// stores on Redis. Refresh rotation relies on a Lua script so the
// take-and-delete of a row is a single atomic step, and every key carries a
// TTL matching its expiry so Redis prunes dead state on its own.
package redistore
