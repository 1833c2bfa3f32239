package authguard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/forgefit/authguard/internal"
)

// InitiateTwoFactorSetup provisions a TOTP secret for the user and returns
// the material needed to enroll an authenticator. The secret is stored
// encrypted but the factor stays disabled until ConfirmTwoFactorSetup proves
// the authenticator works. Re-initiating before confirmation replaces the
// pending secret.
func (e *Engine) InitiateTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	if e == nil || e.userStore == nil || e.cipher == nil {
		return nil, ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}

	secret, uri, err := e.totp.GenerateSecret(account)
	if err != nil {
		return nil, err
	}

	encrypted, err := e.cipher.Encrypt([]byte(secret))
	if err != nil {
		return nil, errors.Join(ErrSecretsUnavailable, err)
	}

	user.TOTPSecret = encrypted
	user.BackupCodes = ""
	if err := e.userStore.Save(ctx, user); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	setup := &TwoFactorSetup{
		Secret:      secret,
		ManualEntry: internal.GroupSecret(secret, 4),
	}
	if img, err := e.qr.Render(uri); err == nil {
		setup.QRImage = img
	} else {
		log.Printf("[authguard] qr render failed for user %s: %v", userID, err)
	}

	e.emitAudit(ctx, AuditTwoFactorInitiated, userID, "", true, nil, nil)

	return setup, nil
}

// ConfirmTwoFactorSetup verifies one code against the pending secret and, on
// success, enables the factor and returns the freshly generated backup codes.
// This response is the only time the plaintext codes are visible.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.userStore == nil || e.cipher == nil {
		return nil, ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	if user.TOTPSecret == "" {
		return nil, ErrTwoFactorNotInitiated
	}

	secret, err := e.decryptSecret(user)
	if err != nil {
		return nil, err
	}
	if !e.totp.ValidateCode(code, secret) {
		return nil, ErrCodeInvalid
	}

	codes, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}
	encoded, err := e.encodeBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	user.BackupCodes = encoded
	user.TwoFactorEnabled = true
	if err := e.userStore.Save(ctx, user); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, AuditTwoFactorEnabled, userID, "", true, nil, nil)

	return codes, nil
}

// VerifyLoginFactor checks a second-factor code during login: first as a
// TOTP code against the stored secret, then as a backup code. A matched
// backup code is consumed before the method returns.
func (e *Engine) VerifyLoginFactor(ctx context.Context, userID, code string) error {
	if e == nil || e.userStore == nil || e.cipher == nil {
		return ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotInitiated
	}

	secret, err := e.decryptSecret(user)
	if err != nil {
		return err
	}
	if e.totp.ValidateCode(code, secret) {
		return nil
	}

	return e.consumeBackupCode(ctx, user, code)
}

// VerifyBackupCode validates and consumes one backup code outside the login
// flow. Each code works exactly once.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if e == nil || e.userStore == nil || e.cipher == nil {
		return ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotInitiated
	}

	return e.consumeBackupCode(ctx, user, code)
}

// DisableTwoFactor turns the factor off after verifying a current TOTP code
// or a remaining backup code. Secret and backup codes are discarded.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if e == nil || e.userStore == nil || e.cipher == nil {
		return ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotInitiated
	}

	secret, err := e.decryptSecret(user)
	if err != nil {
		return err
	}
	if !e.totp.ValidateCode(code, secret) {
		if user.BackupCodes == "" {
			e.metricInc(MetricBackupCodeFailed)
			return ErrCodeInvalid
		}
		codes, err := e.decodeBackupCodes(user)
		if err != nil {
			return err
		}
		if findBackupCode(codes, code) < 0 {
			e.metricInc(MetricBackupCodeFailed)
			return ErrCodeInvalid
		}
		// The matched code is discarded with the rest of the set below, in
		// the same write that turns the factor off.
		e.metricInc(MetricBackupCodeUsed)
	}

	user.TOTPSecret = ""
	user.BackupCodes = ""
	user.TwoFactorEnabled = false
	if err := e.userStore.Save(ctx, user); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, AuditTwoFactorDisabled, userID, "", true, nil, nil)

	return nil
}

// TwoFactorStatus reports the user's second-factor state without exposing
// any secret material.
func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	if e == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &TwoFactorStatus{
		Enabled:   user.TwoFactorEnabled,
		HasSecret: user.TOTPSecret != "",
	}
	if user.TwoFactorEnabled && user.BackupCodes != "" {
		codes, err := e.decodeBackupCodes(user)
		if err != nil {
			// Undecodable ciphertext counts as zero remaining rather than
			// failing a read-only status call.
			log.Printf("[authguard] backup code decode failed for user %s: %v", userID, err)
		} else {
			status.BackupCodesRemaining = len(codes)
		}
	}

	return status, nil
}

// RegenerateBackupCodes replaces every remaining backup code with a full
// fresh set. Requires the factor to be enabled and a valid current TOTP
// code; backup codes cannot authorize their own replacement.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.userStore == nil || e.cipher == nil {
		return nil, ErrEngineNotReady
	}

	unlock := e.lockUser(userID)
	defer unlock()

	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotInitiated
	}

	secret, err := e.decryptSecret(user)
	if err != nil {
		return nil, err
	}
	if !e.totp.ValidateCode(code, secret) {
		return nil, ErrCodeInvalid
	}

	codes, err := e.generateBackupCodes()
	if err != nil {
		return nil, err
	}
	encoded, err := e.encodeBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	user.BackupCodes = encoded
	if err := e.userStore.Save(ctx, user); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, AuditBackupCodesRotated, userID, "", true, nil, nil)

	return codes, nil
}

// consumeBackupCode matches code against the user's remaining backup codes
// and persists the set with the matched entry removed. Caller holds the
// user lock.
func (e *Engine) consumeBackupCode(ctx context.Context, user *User, code string) error {
	if user.BackupCodes == "" {
		e.metricInc(MetricBackupCodeFailed)
		return ErrCodeInvalid
	}

	codes, err := e.decodeBackupCodes(user)
	if err != nil {
		return err
	}

	match := findBackupCode(codes, code)
	if match < 0 {
		e.metricInc(MetricBackupCodeFailed)
		return ErrCodeInvalid
	}

	remaining := append(codes[:match:match], codes[match+1:]...)
	encoded, err := e.encodeBackupCodes(remaining)
	if err != nil {
		return err
	}

	user.BackupCodes = encoded
	if err := e.userStore.Save(ctx, user); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, AuditBackupCodeUsed, user.ID, "", true, nil, map[string]string{
		"remaining": strconv.Itoa(len(remaining)),
	})

	return nil
}

// findBackupCode returns the index of code in codes after canonicalization,
// or -1 when absent.
func findBackupCode(codes []string, code string) int {
	needle := internal.CanonicalizeBackupCode(code)
	for i, c := range codes {
		if c == needle {
			return i
		}
	}
	return -1
}

func (e *Engine) decryptSecret(user *User) (string, error) {
	plaintext, err := e.cipher.Decrypt(user.TOTPSecret)
	if err != nil {
		return "", errors.Join(ErrSecretsUnavailable, err)
	}
	return string(plaintext), nil
}

func (e *Engine) generateBackupCodes() ([]string, error) {
	codes := make([]string, 0, e.config.TwoFactor.BackupCodeCount)
	seen := make(map[string]bool, e.config.TwoFactor.BackupCodeCount)
	for len(codes) < e.config.TwoFactor.BackupCodeCount {
		c, err := internal.NewBackupCode(e.config.TwoFactor.BackupCodeLength)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	return codes, nil
}

func (e *Engine) encodeBackupCodes(codes []string) (string, error) {
	data, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}
	encrypted, err := e.cipher.Encrypt(data)
	if err != nil {
		return "", errors.Join(ErrSecretsUnavailable, err)
	}
	return encrypted, nil
}

func (e *Engine) decodeBackupCodes(user *User) ([]string, error) {
	data, err := e.cipher.Decrypt(user.BackupCodes)
	if err != nil {
		return nil, errors.Join(ErrSecretsUnavailable, err)
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, errors.Join(ErrSecretsUnavailable, err)
	}
	return codes, nil
}
