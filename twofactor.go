package authguard

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager wraps the TOTP primitives behind the engine's configuration so
// the call sites never touch library option structs.
type totpManager struct {
	issuer     string
	digits     otp.Digits
	period     uint
	skew       uint
	secretSize uint
	now        func() time.Time
}

func newTOTPManager(cfg TwoFactorConfig) *totpManager {
	return &totpManager{
		issuer:     cfg.Issuer,
		digits:     otp.Digits(cfg.Digits),
		period:     uint(cfg.Period),
		skew:       uint(cfg.Skew),
		secretSize: uint(cfg.SecretSize),
		now:        time.Now,
	}
}

// GenerateSecret creates a fresh shared secret for accountName and returns
// the base32 secret together with its provisioning URI.
func (m *totpManager) GenerateSecret(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		Period:      m.period,
		SecretSize:  m.secretSize,
		Digits:      m.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateCode checks code against secret at the current time, accepting the
// configured number of adjacent periods of clock drift.
func (m *totpManager) ValidateCode(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, m.now().UTC(), totp.ValidateOpts{
		Period:    m.period,
		Skew:      m.skew,
		Digits:    m.digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// keyImageRenderer renders provisioning URIs as PNG QR codes. It is the
// default QRRenderer installed by the builder.
type keyImageRenderer struct {
	size int
}

func (r keyImageRenderer) Render(uri string) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}
	img, err := key.Image(r.size, r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}
