package authguard

import "errors"

// Validation-type errors are expected, user-recoverable outcomes. Callers
// distinguish them from infrastructure failures with errors.Is so they can
// pick appropriate status codes and messaging.
var (
	// ErrInvalidCredentials is returned when the identifier/password pair
	// does not match a user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a user id resolves to no record.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountUnverified is returned when login requires a verified
	// account and the user has not completed verification.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrLoginBlocked is returned by the throttle before credentials are
	// checked, once the failure threshold is exceeded within the window.
	ErrLoginBlocked = errors.New("too many failed login attempts")
	// ErrSecondFactorRequired is returned when credentials are correct but
	// the user has a second factor enabled and no code was supplied.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrCodeInvalid is returned when a TOTP or backup code does not
	// validate. State is never mutated on this error.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrTwoFactorEnabled is returned when setup is initiated for a user
	// whose second factor is already enabled.
	ErrTwoFactorEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotInitiated is returned when a transition requires a
	// provisioned secret and none is stored.
	ErrTwoFactorNotInitiated = errors.New("two-factor setup not initiated")
	// ErrRefreshNotFound is returned when a refresh token is unknown:
	// never issued, already rotated, or garbage input.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshExpired is returned when a refresh token row existed but
	// was past its expiry; the row is pruned as a side effect.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrTokenInvalid is returned for access tokens that fail parsing or
	// signature verification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned for access tokens whose jti is on the
	// blacklist.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or with a missing dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Infrastructure errors wrap the underlying cause and are never retried
// internally.
var (
	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrSecretsUnavailable wraps encrypt/decrypt failures on second-factor
	// material.
	ErrSecretsUnavailable = errors.New("secrets backend unavailable")
)
