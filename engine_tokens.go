package authguard

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/forgefit/authguard/internal"
)

// IssueTokens creates a signed access token and a fresh opaque refresh token
// for user, persisting the refresh row before anything is returned.
func (e *Engine) IssueTokens(ctx context.Context, user *User) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if user == nil || user.ID == "" {
		return nil, ErrUserNotFound
	}

	scope := ScopeFromRoles(user.Roles)
	access, _, ttl, err := e.jwtManager.CreateAccess(user.ID, user.ID, user.Username, scope)
	if err != nil {
		return nil, err
	}

	opaque, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := RefreshToken{
		Token:     opaque,
		UserID:    user.ID,
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL),
		CreatedAt: now,
	}
	if err := e.refreshStore.Save(ctx, row); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	return &TokenPair{
		AccessToken:  access,
		ExpiresIn:    int64(ttl / time.Second),
		RefreshToken: opaque,
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed
// atomically and a brand-new pair is issued. Of any number of concurrent
// calls with the same token, at most one succeeds; the rest observe
// ErrRefreshNotFound.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.refreshStore == nil {
		return nil, ErrEngineNotReady
	}

	row, ok, err := e.refreshStore.Claim(ctx, refreshToken)
	if err != nil {
		log.Printf("[authguard] refresh claim failed: %v", err)
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, "", "", false, ErrRefreshNotFound, nil)
		return nil, ErrRefreshNotFound
	}

	if time.Now().After(row.ExpiresAt) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefreshFailure, row.UserID, "", false, ErrRefreshExpired, nil)
		return nil, ErrRefreshExpired
	}

	user, err := e.userStore.FindByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrUserNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	pair, err := e.IssueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefreshSuccess, user.ID, "", true, nil, nil)

	return pair, nil
}

// Revoke puts an access token's jti on the blacklist until the token's own
// expiry. Revoking an already-revoked token is a no-op.
func (e *Engine) Revoke(ctx context.Context, accessToken string) error {
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

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, AuditTokenRevoked, claims.UID, "", true, nil, map[string]string{
		"jti": claims.ID,
	})

	return nil
}

// IsRevoked reports blacklist membership for a jti.
func (e *Engine) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if e == nil || e.blacklist == nil {
		return false, ErrEngineNotReady
	}
	revoked, err := e.blacklist.Contains(ctx, jti)
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return revoked, nil
}
