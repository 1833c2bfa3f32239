package limiters

import (
	"sync"
	"time"
)

// LoginConfig holds the failure threshold and the rolling window over which
// failures count toward a lockout.
type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// LoginThrottle tracks recent authentication failures per account key and
// blocks further attempts once the threshold is exceeded within the window.
//
// The window is sliding: every failure shifts the effective block expiry
// forward, so an attacker cannot wait out a fixed reset boundary. One
// success clears the key entirely.
//
// State is held in process memory only. That is correct for a single
// instance; a multi-instance deployment needs a shared counter with TTL
// behind the same API.
type LoginThrottle struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	config   LoginConfig
	now      func() time.Time
}

// NewLoginThrottle creates a throttle with the given limits.
func NewLoginThrottle(cfg LoginConfig) *LoginThrottle {
	return &LoginThrottle{
		attempts: make(map[string][]time.Time),
		config:   cfg,
		now:      time.Now,
	}
}

// RecordFailure appends a failure timestamp for the key, pruning entries
// older than the window in the same operation.
func (t *LoginThrottle) RecordFailure(key string) {
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pruneLocked(key)
	t.attempts[key] = append(kept, t.now())
}

// RecordSuccess clears the key's failure history entirely.
func (t *LoginThrottle) RecordSuccess(key string) {
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
}

// IsBlocked reports whether the key has reached the failure threshold
// within the window.
func (t *LoginThrottle) IsBlocked(key string) bool {
	if key == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pruneLocked(key)
	t.storeLocked(key, kept)
	return len(kept) >= t.config.MaxAttempts
}

// Remaining returns how many further failures the key can absorb before
// being blocked, never below zero.
func (t *LoginThrottle) Remaining(key string) int {
	if key == "" {
		return t.config.MaxAttempts
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pruneLocked(key)
	t.storeLocked(key, kept)
	if remaining := t.config.MaxAttempts - len(kept); remaining > 0 {
		return remaining
	}
	return 0
}

// pruneLocked returns the key's failures still inside the window. Caller
// holds t.mu.
func (t *LoginThrottle) pruneLocked(key string) []time.Time {
	cutoff := t.now().Add(-t.config.Window)
	all := t.attempts[key]
	kept := all[:0]
	for _, ts := range all {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (t *LoginThrottle) storeLocked(key string, kept []time.Time) {
	if len(kept) == 0 {
		delete(t.attempts, key)
		return
	}
	t.attempts[key] = kept
}
