package authguard

import (
	"context"
	"strings"

	"github.com/forgefit/authguard/store"
)

// Role is one of the closed set of roles the platform knows about.
type Role string

const (
	RoleUser    Role = "USER"
	RoleTrainer Role = "TRAINER"
	RoleAdmin   Role = "ADMIN"
)

// roleOrder fixes the rendering order of the scope claim so two tokens
// issued for the same role set carry byte-identical scope strings.
var roleOrder = []Role{RoleUser, RoleTrainer, RoleAdmin}

// ScopeFromRoles renders a role set as a space-delimited scope string,
// one ROLE_<NAME> entry per distinct role, in a deterministic order.
func ScopeFromRoles(roles []Role) string {
	present := make(map[Role]bool, len(roles))
	for _, r := range roles {
		present[r] = true
	}

	var b strings.Builder
	for _, r := range roleOrder {
		if !present[r] {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("ROLE_")
		b.WriteString(string(r))
	}
	return b.String()
}

// User is the aggregate owned by the host application's persistence layer.
// The engine reads it for login and mutates only the three second-factor
// fields, each transition as a single read-modify-write.
//
// Invariants: TwoFactorEnabled implies TOTPSecret is non-empty, and
// BackupCodes is empty whenever TwoFactorEnabled is false. TOTPSecret and
// BackupCodes hold ciphertext only.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []Role
	Verified     bool

	TOTPSecret       string
	TwoFactorEnabled bool
	BackupCodes      string
}

// RefreshToken aliases the row type shared with the store backends in
// [store]; see that package for the rotation invariant.
type RefreshToken = store.RefreshToken

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	ExpiresIn    int64 // access token lifetime in seconds
	RefreshToken string
}

// TwoFactorSetup is the provisioning material returned by
// InitiateTwoFactorSetup. This is the only place the raw secret ever leaves
// the engine; QRImage is best-effort and may be nil.
type TwoFactorSetup struct {
	Secret      string
	ManualEntry string
	QRImage     []byte
}

// TwoFactorStatus is a read-only projection of a user's second-factor state.
type TwoFactorStatus struct {
	Enabled              bool
	HasSecret            bool
	BackupCodesRemaining int
}

// UserStore is the host application's persistence for the User aggregate.
// Save must persist the record atomically with respect to concurrent saves
// of the same user.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	Save(ctx context.Context, user *User) error
}

// RefreshTokenStore aliases the refresh-row contract defined in [store].
type RefreshTokenStore = store.RefreshTokenStore

// BlacklistStore aliases the revocation contract defined in [store].
type BlacklistStore = store.BlacklistStore

// Cipher is the symmetric protection boundary for second-factor material at
// rest. Decrypt must fail on tampered or foreign ciphertext.
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// PasswordHasher is the opaque verify/hash capability consumed during login.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// QRRenderer renders an otpauth provisioning URI to an image. Rendering is
// best-effort: a failure degrades the setup response to "no image".
type QRRenderer interface {
	Render(uri string) ([]byte, error)
}
