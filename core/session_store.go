package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore holds session records keyed by opaque token.
// Fetch returns (nil, nil) for absent or expired tokens; Invalidate is
// idempotent.
type SessionStore interface {
	Create(ctx context.Context, token string, rec SessionRecord, ttl time.Duration) error
	Fetch(ctx context.Context, token string) (*SessionRecord, error)
	Invalidate(ctx context.Context, token string) error
}

// RedisClientRaw exposes the minimal subset used by the session store and
// auth metrics.
type RedisClientRaw interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisSessionStore implements SessionStore using go-redis. Expiry is owned
// by the key TTL, so expired and signed-out sessions are both simply absent.
type RedisSessionStore struct {
	client RedisClientRaw
}

func NewRedisSessionStore(client RedisClientRaw) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, token string, rec SessionRecord, ttl time.Duration) error {
	if token == "" {
		return ErrInvalidInput
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+token, payload, ttl).Err()
}

func (s *RedisSessionStore) Fetch(ctx context.Context, token string) (*SessionRecord, error) {
	if token == "" {
		return nil, nil
	}
	val, err := s.client.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		// Corrupt record: treat the token as unknown rather than failing.
		return nil, nil
	}
	return &rec, nil
}

func (s *RedisSessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	// DEL on a missing key is a no-op, which makes sign-out idempotent.
	return s.client.Del(ctx, sessionKeyPrefix+token).Err()
}
