// Package limiters contains the in-process guards that slow or block
// repeated authentication attempts before credentials are checked.
package limiters
