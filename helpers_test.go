package authguard

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	cfg.Metrics.Enabled = true
	// Keep hashing cheap in tests.
	cfg.Password = PasswordConfig{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

var testSecretsKey = []byte("0123456789abcdef0123456789abcdef")

// mockUserStore is a map-backed UserStore for engine tests.
type mockUserStore struct {
	mu        sync.Mutex
	users     map[string]User
	saveCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: map[string]User{}}
}

func (s *mockUserStore) add(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *mockUserStore) get(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *mockUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := u
	return &copied, nil
}

func (s *mockUserStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) || strings.EqualFold(u.Username, identifier) {
			copied := u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *mockUserStore) Save(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	s.users[user.ID] = *user
	return nil
}

func (s *mockUserStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

// mockTokenStore is a map-backed RefreshTokenStore plus BlacklistStore.
type mockTokenStore struct {
	mu        sync.Mutex
	refresh   map[string]RefreshToken
	blacklist map[string]time.Time
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{
		refresh:   map[string]RefreshToken{},
		blacklist: map[string]time.Time{},
	}
}

func (s *mockTokenStore) Save(ctx context.Context, row RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[row.Token] = row
	return nil
}

func (s *mockTokenStore) Claim(ctx context.Context, token string) (*RefreshToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[token]
	if !ok {
		return nil, false, nil
	}
	delete(s.refresh, token)
	return &row, true, nil
}

func (s *mockTokenStore) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[jti] = expiresAt
	return nil
}

func (s *mockTokenStore) Contains(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blacklist[jti]
	return ok, nil
}

func (s *mockTokenStore) expireRefresh(token string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[token]
	if !ok {
		return
	}
	row.ExpiresAt = at
	s.refresh[token] = row
}

func newTestEngine(t *testing.T, cfg Config, users *mockUserStore) (*Engine, *mockTokenStore) {
	t.Helper()

	tokens := newMockTokenStore()
	engine, err := New().
		WithConfig(cfg).
		WithUserStore(users).
		WithRefreshTokenStore(tokens).
		WithBlacklistStore(tokens).
		WithSecretsKey(testSecretsKey).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, tokens
}

func seedUser(t *testing.T, engine *Engine, users *mockUserStore, id, email, pass string) User {
	t.Helper()

	hash, err := engine.passwordHash.Hash(pass)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := User{
		ID:           id,
		Username:     id,
		Email:        email,
		PasswordHash: hash,
		Roles:        []Role{RoleUser},
		Verified:     true,
	}
	users.add(u)
	return u
}
