package authguard

import (
	"errors"
	"time"
)

// Config is the engine configuration tree. Instances are treated as
// immutable after Build.
type Config struct {
	JWT       JWTConfig
	TwoFactor TwoFactorConfig
	Throttle  ThrottleConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// RequireVerified rejects logins from accounts that have not completed
	// verification.
	RequireVerified bool
}

// JWTConfig controls access and refresh token lifetimes and signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// TwoFactorConfig controls the TOTP second factor.
//
// Skew is the accepted drift in whole time steps on either side of now.
// One step of the 30-second period is the conventional tolerance: wider
// weakens the factor, narrower rejects legitimate codes on clock skew.
type TwoFactorConfig struct {
	Issuer           string
	Digits           int
	Period           int // seconds
	Skew             int
	SecretSize       int // raw secret bytes before base32
	BackupCodeCount  int
	BackupCodeLength int
}

// ThrottleConfig controls the in-process login-attempt throttle.
type ThrottleConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// PasswordConfig holds argon2id parameters for the default hasher.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authguard",
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           "authguard",
			Digits:           6,
			Period:           30,
			Skew:             1,
			SecretSize:       20,
			BackupCodeCount:  8,
			BackupCodeLength: 8,
		},
		Throttle: ThrottleConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	if c.TwoFactor.Issuer == "" {
		return errors.New("TwoFactor Issuer is required")
	}
	if c.TwoFactor.Digits != 6 && c.TwoFactor.Digits != 8 {
		return errors.New("TwoFactor Digits must be 6 or 8")
	}
	if c.TwoFactor.Period < 15 {
		return errors.New("TwoFactor Period must be >= 15 seconds")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return errors.New("TwoFactor Skew must be between 0 and 2")
	}
	if c.TwoFactor.SecretSize < 16 {
		return errors.New("TwoFactor SecretSize must be >= 16 bytes")
	}
	if c.TwoFactor.BackupCodeCount <= 0 {
		return errors.New("TwoFactor BackupCodeCount must be > 0")
	}
	if c.TwoFactor.BackupCodeLength < 8 {
		return errors.New("TwoFactor BackupCodeLength must be >= 8")
	}

	if c.Throttle.MaxAttempts <= 0 {
		return errors.New("Throttle MaxAttempts must be > 0")
	}
	if c.Throttle.Window <= 0 {
		return errors.New("Throttle Window must be > 0")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
