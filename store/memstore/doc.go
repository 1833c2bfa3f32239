// Package memstore provides in-memory implementations of the authguard
// storage interfaces. State lives in process memory and is lost on restart;
// use it for tests, demos, and single-instance deployments where durability
// is not required.
package memstore
