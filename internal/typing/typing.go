// Package typing tracks short-lived "user is typing" indicators per chat thread.
package typing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store keeps typing flags that expire on their own after a TTL.
type Store interface {
	Set(ctx context.Context, threadKey string, userID uint) error
	Clear(ctx context.Context, threadKey string, userID uint) error
	IsTyping(ctx context.Context, threadKey string, userID uint) (bool, error)
}

func key(threadKey string, userID uint) string {
	return fmt.Sprintf("typing:%s:%d", threadKey, userID)
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "connect to redis")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Set(ctx context.Context, threadKey string, userID uint) error {
	return s.client.Set(ctx, key(threadKey, userID), 1, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, threadKey string, userID uint) error {
	return s.client.Del(ctx, key(threadKey, userID)).Err()
}

func (s *RedisStore) IsTyping(ctx context.Context, threadKey string, userID uint) (bool, error) {
	n, err := s.client.Exists(ctx, key(threadKey, userID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is the single-instance fallback when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	expires map[string]time.Time
	swept   time.Time
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, expires: make(map[string]time.Time), now: time.Now}
}

// Set also drops expired flags, at most once per TTL, so keys that are never
// read again do not pile up.
func (s *MemoryStore) Set(_ context.Context, threadKey string, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.swept) >= s.ttl {
		for k, exp := range s.expires {
			if !now.Before(exp) {
				delete(s.expires, k)
			}
		}
		s.swept = now
	}
	s.expires[key(threadKey, userID)] = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, threadKey string, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, key(threadKey, userID))
	return nil
}

func (s *MemoryStore) IsTyping(_ context.Context, threadKey string, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(threadKey, userID)
	exp, ok := s.expires[k]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.expires, k)
		return false, nil
	}
	return true, nil
}
