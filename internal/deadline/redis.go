package deadline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists deadlines in Redis as string-encoded epoch
// milliseconds under the composite key layout of Key.String().
type RedisStore struct {
	rdb *redis.Client
	// ttl bounds how long an abandoned deadline entry lingers.
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. ttl ≤ 0 disables expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key Key) (time.Time, error) {
	val, err := s.rdb.Get(ctx, key.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("get deadline: %w", err)
	}

	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline format in cache: %w", err)
	}
	return time.UnixMilli(millis), nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, at time.Time) error {
	return s.rdb.Set(ctx, key.String(), strconv.FormatInt(at.UnixMilli(), 10), s.ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, key Key) error {
	return s.rdb.Del(ctx, key.String()).Err()
}
