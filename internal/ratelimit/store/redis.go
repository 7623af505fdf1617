package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the distributed Store. INCR is the atomic create-or-increment
// primitive; the expiry is pinned to the end of the window with PEXPIREAT so
// re-setting it on every increment is idempotent.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (Counter, error) {
	resetAt := windowStart.Add(window)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpireAt(ctx, key, resetAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return Counter{}, err
	}

	return Counter{Count: incr.Val(), ResetAt: resetAt}, nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string) (Counter, bool, error) {
	pipe := s.rdb.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return Counter{}, false, nil
		}
		return Counter{}, false, err
	}

	count, err := strconv.ParseInt(get.Val(), 10, 64)
	if err != nil {
		return Counter{}, false, err
	}
	return Counter{Count: count, ResetAt: time.Now().Add(ttl.Val())}, true, nil
}

// Ping reports whether the backing redis is reachable, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
