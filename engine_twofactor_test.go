package authguard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom failed: %v", err)
	}
	return code
}

func enableTwoFactor(t *testing.T, engine *Engine, userID string) (secret string, backupCodes []string) {
	t.Helper()

	setup, err := engine.InitiateTwoFactorSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("InitiateTwoFactorSetup failed: %v", err)
	}
	codes, err := engine.ConfirmTwoFactorSetup(context.Background(), userID, totpCode(t, setup.Secret))
	if err != nil {
		t.Fatalf("ConfirmTwoFactorSetup failed: %v", err)
	}
	return setup.Secret, codes
}

func TestTwoFactorSetupLifecycle(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")

	setup, err := engine.InitiateTwoFactorSetup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("InitiateTwoFactorSetup failed: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("setup returned empty secret")
	}
	if !strings.Contains(setup.ManualEntry, " ") {
		t.Fatalf("ManualEntry not grouped: %q", setup.ManualEntry)
	}
	if len(setup.QRImage) == 0 {
		t.Fatal("expected a QR image")
	}

	// The stored secret is ciphertext, never the raw value.
	stored := users.get("u1")
	if stored.TOTPSecret == "" || stored.TOTPSecret == setup.Secret {
		t.Fatalf("stored secret not encrypted: %q", stored.TOTPSecret)
	}
	if stored.TwoFactorEnabled {
		t.Fatal("factor enabled before confirmation")
	}

	// Wrong code leaves the factor disabled.
	if _, err := engine.ConfirmTwoFactorSetup(context.Background(), "u1", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	codes, err := engine.ConfirmTwoFactorSetup(context.Background(), "u1", totpCode(t, setup.Secret))
	if err != nil {
		t.Fatalf("ConfirmTwoFactorSetup failed: %v", err)
	}
	if len(codes) != 8 {
		t.Fatalf("backup codes = %d, want 8", len(codes))
	}
	for _, c := range codes {
		if len(c) != 8 {
			t.Fatalf("backup code %q has wrong length", c)
		}
	}

	stored = users.get("u1")
	if !stored.TwoFactorEnabled {
		t.Fatal("factor not enabled after confirmation")
	}
	for _, c := range codes {
		if strings.Contains(stored.BackupCodes, c) {
			t.Fatal("plaintext backup code found in stored record")
		}
	}
}

func TestInitiateWhileEnabledConflicts(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	enableTwoFactor(t, engine, "u1")

	if _, err := engine.InitiateTwoFactorSetup(context.Background(), "u1"); !errors.Is(err, ErrTwoFactorEnabled) {
		t.Fatalf("expected ErrTwoFactorEnabled, got %v", err)
	}
}

func TestConfirmWithoutInitiate(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")

	if _, err := engine.ConfirmTwoFactorSetup(context.Background(), "u1", "123456"); !errors.Is(err, ErrTwoFactorNotInitiated) {
		t.Fatalf("expected ErrTwoFactorNotInitiated, got %v", err)
	}
}

func TestReinitiateReplacesPendingSecret(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")

	first, err := engine.InitiateTwoFactorSetup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first initiate failed: %v", err)
	}
	second, err := engine.InitiateTwoFactorSetup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second initiate failed: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("re-initiation did not replace the secret")
	}

	// The first secret no longer confirms.
	if _, err := engine.ConfirmTwoFactorSetup(context.Background(), "u1", totpCode(t, first.Secret)); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for stale secret, got %v", err)
	}
	if _, err := engine.ConfirmTwoFactorSetup(context.Background(), "u1", totpCode(t, second.Secret)); err != nil {
		t.Fatalf("confirm with current secret failed: %v", err)
	}
}

func TestLoginRequiresSecondFactor(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTwoFactor(t, engine, "u1")

	_, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrSecondFactorRequired) {
		t.Fatalf("expected ErrSecondFactorRequired, got %v", err)
	}

	pair, err := engine.LoginWithSecondFactor(context.Background(), "alice@example.com", "correct-password-123", totpCode(t, secret))
	if err != nil {
		t.Fatalf("LoginWithSecondFactor failed: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("expected access token")
	}
}

func TestLoginWithWrongSecondFactor(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	enableTwoFactor(t, engine, "u1")

	_, err := engine.LoginWithSecondFactor(context.Background(), "alice@example.com", "correct-password-123", "000000")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	// A failed second factor counts toward the throttle.
	if got := engine.RemainingLoginAttempts("alice@example.com"); got != 4 {
		t.Fatalf("Remaining = %d, want 4", got)
	}
}

func TestLoginWithBackupCode(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	_, codes := enableTwoFactor(t, engine, "u1")

	pair, err := engine.LoginWithSecondFactor(context.Background(), "alice@example.com", "correct-password-123", codes[0])
	if err != nil {
		t.Fatalf("login with backup code failed: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("expected access token")
	}

	// The same code never works twice.
	_, err = engine.LoginWithSecondFactor(context.Background(), "alice@example.com", "correct-password-123", codes[0])
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("reused backup code: expected ErrCodeInvalid, got %v", err)
	}
}

func TestBackupCodeInputNormalization(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	_, codes := enableTwoFactor(t, engine, "u1")

	mangled := strings.ToLower(codes[0][:4]) + "-" + codes[0][4:] + " "
	if err := engine.VerifyBackupCode(context.Background(), "u1", mangled); err != nil {
		t.Fatalf("normalized backup code rejected: %v", err)
	}
}

func TestTwoFactorStatus(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")

	status, err := engine.TwoFactorStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("TwoFactorStatus failed: %v", err)
	}
	if status.Enabled || status.HasSecret || status.BackupCodesRemaining != 0 {
		t.Fatalf("unexpected initial status: %+v", status)
	}

	_, codes := enableTwoFactor(t, engine, "u1")

	status, err = engine.TwoFactorStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("TwoFactorStatus failed: %v", err)
	}
	if !status.Enabled || !status.HasSecret || status.BackupCodesRemaining != 8 {
		t.Fatalf("unexpected enabled status: %+v", status)
	}

	if err := engine.VerifyBackupCode(context.Background(), "u1", codes[0]); err != nil {
		t.Fatalf("VerifyBackupCode failed: %v", err)
	}

	status, err = engine.TwoFactorStatus(context.Background(), "u1")
	if err != nil {
		t.Fatalf("TwoFactorStatus failed: %v", err)
	}
	if status.BackupCodesRemaining != 7 {
		t.Fatalf("BackupCodesRemaining = %d, want 7", status.BackupCodesRemaining)
	}
}

func TestDisableTwoFactor(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	secret, _ := enableTwoFactor(t, engine, "u1")

	if err := engine.DisableTwoFactor(context.Background(), "u1", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	if err := engine.DisableTwoFactor(context.Background(), "u1", totpCode(t, secret)); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}

	stored := users.get("u1")
	if stored.TwoFactorEnabled || stored.TOTPSecret != "" || stored.BackupCodes != "" {
		t.Fatalf("second-factor fields not cleared: %+v", stored)
	}

	// Login is single-factor again.
	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("Login after disable failed: %v", err)
	}
}

func TestDisableTwoFactorWithBackupCode(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	_, codes := enableTwoFactor(t, engine, "u1")

	if err := engine.DisableTwoFactor(context.Background(), "u1", codes[3]); err != nil {
		t.Fatalf("DisableTwoFactor with backup code failed: %v", err)
	}
	stored := users.get("u1")
	if stored.TwoFactorEnabled {
		t.Fatal("factor still enabled")
	}
}

func TestDisableTwoFactorBackupCodeSingleWrite(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	_, codes := enableTwoFactor(t, engine, "u1")

	before := users.saveCount()
	if err := engine.DisableTwoFactor(context.Background(), "u1", codes[0]); err != nil {
		t.Fatalf("DisableTwoFactor with backup code failed: %v", err)
	}
	if got := users.saveCount() - before; got != 1 {
		t.Fatalf("disable wrote the user %d times, want 1", got)
	}

	stored := users.get("u1")
	if stored.TwoFactorEnabled || stored.TOTPSecret != "" || stored.BackupCodes != "" {
		t.Fatalf("second-factor fields not cleared: %+v", stored)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")
	secret, old := enableTwoFactor(t, engine, "u1")

	// Backup codes cannot authorize their own replacement.
	if _, err := engine.RegenerateBackupCodes(context.Background(), "u1", old[0]); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	fresh, err := engine.RegenerateBackupCodes(context.Background(), "u1", totpCode(t, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(fresh) != 8 {
		t.Fatalf("fresh codes = %d, want 8", len(fresh))
	}

	// Old codes are dead, fresh codes work.
	if err := engine.VerifyBackupCode(context.Background(), "u1", old[1]); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("old code: expected ErrCodeInvalid, got %v", err)
	}
	if err := engine.VerifyBackupCode(context.Background(), "u1", fresh[0]); err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
}

func TestSecondFactorOpsRequireEnrollment(t *testing.T) {
	users := newMockUserStore()
	engine, _ := newTestEngine(t, testConfig(), users)
	seedUser(t, engine, users, "u1", "alice@example.com", "correct-password-123")

	if err := engine.DisableTwoFactor(context.Background(), "u1", "123456"); !errors.Is(err, ErrTwoFactorNotInitiated) {
		t.Fatalf("disable: got %v", err)
	}
	if err := engine.VerifyBackupCode(context.Background(), "u1", "AAAAAAAA"); !errors.Is(err, ErrTwoFactorNotInitiated) {
		t.Fatalf("verify: got %v", err)
	}
	if _, err := engine.RegenerateBackupCodes(context.Background(), "u1", "123456"); !errors.Is(err, ErrTwoFactorNotInitiated) {
		t.Fatalf("regenerate: got %v", err)
	}
}
