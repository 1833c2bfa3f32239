package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgefit/authguard/store"
)

// ErrRedisUnavailable indicates the Redis backend is unreachable or
// returned a malformed reply.
var ErrRedisUnavailable = errors.New("redis store unavailable")

const defaultPrefix = "ag"

// claimScript atomically takes a refresh-token row: it returns the payload
// and deletes the key in one step, so of any number of concurrent callers
// presenting the same token only one receives the row.
const claimScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return false
end
redis.call("DEL", KEYS[1])
return v
`

var claimLua = redis.NewScript(claimScript)

// Store implements store.RefreshTokenStore and store.BlacklistStore
// on Redis. Rows carry a TTL matching their expiry so Redis prunes them
// without a sweeper.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a store with the given key prefix ("ag" when empty).
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) refreshKey(token string) string {
	return s.prefix + ":rt:" + token
}

func (s *Store) blacklistKey(jti string) string {
	return s.prefix + ":bl:" + jti
}

// Save persists a refresh-token row with a TTL bounded by its expiry.
func (s *Store) Save(ctx context.Context, row store.RefreshToken) error {
	ttl := time.Until(row.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: refresh token already expired at save", ErrRedisUnavailable)
	}

	blob, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := s.redis.Set(ctx, s.refreshKey(row.Token), blob, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Claim atomically removes and returns the row for token. Unknown tokens
// (including rows Redis already expired) report ok == false.
func (s *Store) Claim(ctx context.Context, token string) (*store.RefreshToken, bool, error) {
	if token == "" {
		return nil, false, nil
	}

	result, err := claimLua.Run(ctx, s.redis, []string{s.refreshKey(token)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var blob []byte
	switch v := result.(type) {
	case string:
		blob = []byte(v)
	case []byte:
		blob = v
	default:
		return nil, false, fmt.Errorf("%w: invalid claim script reply", ErrRedisUnavailable)
	}

	var row store.RefreshToken
	if err := json.Unmarshal(blob, &row); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return &row, true, nil
}

// Add inserts a blacklist entry that lives until the token's own expiry.
// Re-adding an existing jti is a no-op, as is blacklisting a token that has
// already expired (it could not be valid anyway).
func (s *Store) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.SetNX(ctx, s.blacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Contains reports blacklist membership for a jti.
func (s *Store) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
