package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/forgefit/authguard"
)

// Users is an in-memory authguard.UserStore for tests and single-binary
// deployments.
type Users struct {
	mu   sync.RWMutex
	byID map[string]authguard.User
}

// NewUsers creates an empty user store.
func NewUsers() *Users {
	return &Users{byID: make(map[string]authguard.User)}
}

// Add inserts a user directly, bypassing the engine. Test setup helper.
func (s *Users) Add(user authguard.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[user.ID] = user
}

// Get returns a copy of the stored record. Test inspection helper.
func (s *Users) Get(id string) (authguard.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}

func (s *Users) FindByID(ctx context.Context, id string) (*authguard.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, authguard.ErrUserNotFound
	}
	copied := u
	return &copied, nil
}

func (s *Users) FindByIdentifier(ctx context.Context, identifier string) (*authguard.User, error) {
	needle := strings.ToLower(strings.TrimSpace(identifier))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if strings.ToLower(u.Email) == needle || strings.ToLower(u.Username) == needle {
			copied := u
			return &copied, nil
		}
	}
	return nil, authguard.ErrUserNotFound
}

func (s *Users) Save(ctx context.Context, user *authguard.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[user.ID] = *user
	return nil
}

// Tokens is an in-memory authguard.RefreshTokenStore plus
// authguard.BlacklistStore. All operations are guarded by one mutex, which
// makes Claim trivially atomic.
type Tokens struct {
	mu        sync.Mutex
	refresh   map[string]authguard.RefreshToken
	blacklist map[string]time.Time
	now       func() time.Time
}

// NewTokens creates an empty token store.
func NewTokens() *Tokens {
	return &Tokens{
		refresh:   make(map[string]authguard.RefreshToken),
		blacklist: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *Tokens) Save(ctx context.Context, row authguard.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[row.Token] = row
	return nil
}

func (s *Tokens) Claim(ctx context.Context, token string) (*authguard.RefreshToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[token]
	if !ok {
		return nil, false, nil
	}
	delete(s.refresh, token)
	return &row, true, nil
}

func (s *Tokens) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiresAt.Before(s.now()) {
		return nil
	}
	if _, exists := s.blacklist[jti]; !exists {
		s.blacklist[jti] = expiresAt
	}
	return nil
}

func (s *Tokens) Contains(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.blacklist[jti]
	if !ok {
		return false, nil
	}
	if expiresAt.Before(s.now()) {
		delete(s.blacklist, jti)
		return false, nil
	}
	return true, nil
}

// RefreshCount reports live refresh rows. Test inspection helper.
func (s *Tokens) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

// BlacklistCount reports live blacklist entries. Test inspection helper.
func (s *Tokens) BlacklistCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blacklist)
}
