// Package session caches resolved caller contexts in Redis so every request
// does not need a profile + role join.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss reports that no cached entry exists for the user.
var ErrMiss = errors.New("caller cache miss")

// Caller is the cached tenant context of one user.
type Caller struct {
	UserID    string    `json:"user_id"`
	ProfileID string    `json:"profile_id"`
	CompanyID string    `json:"company_id"`
	Role      string    `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CachedAt  time.Time `json:"cached_at"`
}

// RedisStore keeps callers under "caller:<user_id>" with a fixed TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{
		client: client,
		prefix: "caller:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Caller, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Caller{}, ErrMiss
	}
	if err != nil {
		return Caller{}, fmt.Errorf("get cached caller: %w", err)
	}

	var caller Caller
	if err := json.Unmarshal(raw, &caller); err != nil {
		return Caller{}, fmt.Errorf("unmarshal cached caller: %w", err)
	}
	return caller, nil
}

func (s *RedisStore) Put(ctx context.Context, caller Caller) error {
	if caller.CachedAt.IsZero() {
		caller.CachedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(caller)
	if err != nil {
		return fmt.Errorf("marshal caller: %w", err)
	}
	if err := s.client.Set(ctx, s.key(caller.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache caller: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry. Role changes and removals call it so
// the next request re-reads the store.
func (s *RedisStore) Invalidate(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate caller: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
