package authguard

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/forgefit/authguard/internal/limiters"
	"github.com/forgefit/authguard/jwt"
	"github.com/forgefit/authguard/password"
	"github.com/forgefit/authguard/secrets"
	"github.com/forgefit/authguard/store/redistore"
)

// Builder assembles an Engine. Configure it with the With* methods and call
// Build once; a Builder is not safe for concurrent use and cannot be reused.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore    UserStore
	refreshStore RefreshTokenStore
	blacklist    BlacklistStore
	cipher       Cipher
	secretsKey   []byte
	hasher       PasswordHasher
	qr           QRRenderer
	auditSink    AuditSink

	built bool
}

// New returns a Builder carrying the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis installs Redis-backed refresh-token and blacklist stores. An
// explicit WithRefreshTokenStore or WithBlacklistStore wins over the Redis
// default for that store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore installs the host application's user persistence.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithRefreshTokenStore overrides the refresh-token store.
func (b *Builder) WithRefreshTokenStore(store RefreshTokenStore) *Builder {
	b.refreshStore = store
	return b
}

// WithBlacklistStore overrides the access-token blacklist store.
func (b *Builder) WithBlacklistStore(store BlacklistStore) *Builder {
	b.blacklist = store
	return b
}

// WithCipher installs the cipher protecting second-factor material at rest.
func (b *Builder) WithCipher(cipher Cipher) *Builder {
	b.cipher = cipher
	return b
}

// WithSecretsKey is a convenience for the common case: it builds an
// AES-256-GCM cipher from the given 32-byte key during Build.
func (b *Builder) WithSecretsKey(key []byte) *Builder {
	b.secretsKey = cloneBytes(key)
	return b
}

// WithPasswordHasher overrides the default argon2id hasher.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithQRRenderer overrides the default PNG QR renderer.
func (b *Builder) WithQRRenderer(r QRRenderer) *Builder {
	b.qr = r
	return b
}

// WithAuditSink installs the sink receiving audit events. Audit delivery is
// enabled through Config.Audit.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, fills in defaults, and returns the
// assembled Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userStore == nil {
		return nil, errors.New("user store required")
	}

	refreshStore := b.refreshStore
	blacklist := b.blacklist
	if b.redis != nil {
		store := redistore.New(b.redis, "")
		if refreshStore == nil {
			refreshStore = store
		}
		if blacklist == nil {
			blacklist = store
		}
	}
	if refreshStore == nil {
		return nil, errors.New("refresh token store required (provide redis or an explicit store)")
	}
	if blacklist == nil {
		return nil, errors.New("blacklist store required (provide redis or an explicit store)")
	}

	cipher := b.cipher
	if cipher == nil && len(b.secretsKey) > 0 {
		c, err := secrets.NewAESCipher(b.secretsKey)
		if err != nil {
			return nil, err
		}
		cipher = c
	}
	if cipher == nil {
		return nil, errors.New("cipher required (WithCipher or WithSecretsKey)")
	}

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	qr := b.qr
	if qr == nil {
		qr = keyImageRenderer{size: 256}
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		userStore:    b.userStore,
		refreshStore: refreshStore,
		blacklist:    blacklist,
		cipher:       cipher,
		passwordHash: hasher,
		qr:           qr,
		jwtManager:   jm,
		totp:         newTOTPManager(cfg.TwoFactor),
		throttle: limiters.NewLoginThrottle(limiters.LoginConfig{
			MaxAttempts: cfg.Throttle.MaxAttempts,
			Window:      cfg.Throttle.Window,
		}),
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	b.built = true

	return engine, nil
}
