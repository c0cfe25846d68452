package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore counts windows in redis for deployments that already run it.
// INCR is atomic; the expiry is attached by whichever request created the key.
type RedisStore struct {
	Client *redis.Client
}

func (s *RedisStore) Increment(ctx context.Context, identifier, action string, windowStart, expiresAt time.Time) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s:%d", action, identifier, windowStart.Unix())

	count, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.Client.ExpireAt(ctx, key, expiresAt).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// PurgeExpired is a no-op: redis evicts windows through key expiry.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
