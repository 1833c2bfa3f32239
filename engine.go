package authguard

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/forgefit/authguard/internal/limiters"
	"github.com/forgefit/authguard/jwt"
)

// Engine is the entry point for every authentication operation. All fields
// are set by the Builder and never mutated afterwards; an Engine is safe for
// concurrent use.
type Engine struct {
	config       Config
	userStore    UserStore
	refreshStore RefreshTokenStore
	blacklist    BlacklistStore
	cipher       Cipher
	passwordHash PasswordHasher
	qr           QRRenderer
	jwtManager   *jwt.Manager
	totp         *totpManager
	throttle     *limiters.LoginThrottle
	metrics      *Metrics
	audit        *auditDispatcher

	// userLocks serializes read-modify-write cycles on one user's
	// second-factor fields. Keyed by user id.
	userLocks sync.Map
}

// Close drains and stops the audit dispatcher. Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil || e.metrics == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, identifier string, success bool, cause error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		Success:    success,
		Metadata:   metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}

// lockUser takes the per-user mutex for id and returns its unlock func.
func (e *Engine) lockUser(id string) func() {
	v, _ := e.userLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Login authenticates an identifier/password pair and issues a token pair.
// When the account has a second factor enabled it fails with
// ErrSecondFactorRequired; the caller then retries through
// LoginWithSecondFactor.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	return e.loginInternal(ctx, identifier, password, "")
}

// LoginWithSecondFactor authenticates credentials plus a TOTP or backup
// code in one call.
func (e *Engine) LoginWithSecondFactor(ctx context.Context, identifier, password, code string) (*TokenPair, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrCodeInvalid
	}
	return e.loginInternal(ctx, identifier, password, code)
}

func (e *Engine) loginInternal(ctx context.Context, identifier, password, code string) (*TokenPair, error) {
	if e == nil || e.userStore == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	key := normalizeIdentifier(identifier)
	if key == "" || password == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	if e.throttle.IsBlocked(key) {
		e.metricInc(MetricLoginBlocked)
		e.emitAudit(ctx, AuditLoginBlocked, "", key, false, ErrLoginBlocked, nil)
		return nil, ErrLoginBlocked
	}

	user, err := e.userStore.FindByIdentifier(ctx, key)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.throttle.RecordFailure(key)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditLoginFailure, "", key, false, ErrInvalidCredentials, map[string]string{
				"reason": "unknown_identifier",
			})
			return nil, ErrInvalidCredentials
		}
		log.Printf("[authguard] user lookup failed: %v", err)
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	ok, err := e.passwordHash.Verify(password, user.PasswordHash)
	if err != nil {
		// Verify only errors on corrupt stored material, never on mismatch.
		log.Printf("[authguard] password verify failed for user %s: %v", user.ID, err)
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if !ok {
		e.throttle.RecordFailure(key)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, user.ID, key, false, ErrInvalidCredentials, map[string]string{
			"reason": "bad_password",
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.RequireVerified && !user.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, user.ID, key, false, ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	if user.TwoFactorEnabled {
		if code == "" {
			e.metricInc(MetricSecondFactorRequired)
			return nil, ErrSecondFactorRequired
		}
		if err := e.VerifyLoginFactor(ctx, user.ID, code); err != nil {
			if errors.Is(err, ErrCodeInvalid) {
				e.throttle.RecordFailure(key)
				e.metricInc(MetricSecondFactorFailure)
				e.emitAudit(ctx, AuditSecondFactorFailure, user.ID, key, false, ErrCodeInvalid, nil)
				return nil, ErrCodeInvalid
			}
			return nil, err
		}
		e.metricInc(MetricSecondFactorSuccess)
	}

	e.throttle.RecordSuccess(key)

	pair, err := e.IssueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, user.ID, key, true, nil, nil)

	return pair, nil
}

// RemainingLoginAttempts reports how many failures are left before the
// identifier is blocked.
func (e *Engine) RemainingLoginAttempts(identifier string) int {
	if e == nil || e.throttle == nil {
		return 0
	}
	return e.throttle.Remaining(normalizeIdentifier(identifier))
}

// ValidateAccess parses and verifies an access token, then checks that its
// jti has not been revoked. Returns the claim set on success.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, errors.Join(ErrTokenInvalid, err)
	}

	revoked, err := e.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		log.Printf("[authguard] blacklist lookup failed: %v", err)
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Logout revokes the access token and consumes the refresh token so neither
// can be used again. Revocation proceeds even when the refresh token is
// already gone.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return errors.Join(ErrTokenInvalid, err)
	}

	if err := e.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	if refreshToken != "" {
		if _, _, err := e.refreshStore.Claim(ctx, refreshToken); err != nil {
			log.Printf("[authguard] refresh discard failed during logout: %v", err)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, claims.UID, "", true, nil, nil)

	return nil
}
