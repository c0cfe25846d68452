package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"printmill/internal/logger"
)

// Redis serializes payment-event processing per order. Webhook deliveries for
// the same order can arrive on overlapping connections; the lock keeps only
// one of them mutating the order at a time while the database CAS remains the
// source of truth.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	return &Redis{Client: client, Logger: log}
}

// getOrderLockDuration returns the order lock TTL from environment variables
// or the default value.
func (r *Redis) getOrderLockDuration() time.Duration {
	defaultDuration := 30 * time.Second

	lockTTLStr := os.Getenv("ORDER_LOCK_TTL_SECONDS")
	if lockTTLStr == "" {
		return defaultDuration
	}

	lockTTLSec, err := strconv.Atoi(lockTTLStr)
	if err != nil {
		r.Logger.Warn("REDIS", "Invalid ORDER_LOCK_TTL_SECONDS value '"+lockTTLStr+"', using default 30 seconds")
		return defaultDuration
	}

	return time.Duration(lockTTLSec) * time.Second
}

// LockOrder takes the per-order mutation lock. The owner token identifies the
// holder so an expired lock cannot be released by a stale caller.
func (r *Redis) LockOrder(orderID, owner string) (bool, error) {
	key := "order_lock:" + orderID
	ok, err := r.Client.SetNX(context.Background(), key, owner, r.getOrderLockDuration()).Result()
	return ok, err
}

// UnlockOrder releases the lock only if this caller still owns it.
func (r *Redis) UnlockOrder(orderID, owner string) error {
	ctx := context.Background()
	key := fmt.Sprintf("order_lock:%s", orderID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// WithOrderLock runs fn while holding the per-order lock, spinning briefly if
// another holder is active. If the lock never frees up fn runs anyway; the
// database CAS still rejects stale writes, the lock only reduces contention.
func (r *Redis) WithOrderLock(orderID, owner string, fn func() error) error {
	acquired := false
	for attempt := 0; attempt < 10; attempt++ {
		ok, err := r.LockOrder(orderID, owner)
		if err != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("Lock attempt for order %s failed: %v", orderID, err))
			break
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if acquired {
		defer func() {
			if err := r.UnlockOrder(orderID, owner); err != nil {
				r.Logger.Warn("REDIS", fmt.Sprintf("Failed to unlock order %s: %v", orderID, err))
			}
		}()
	}
	return fn()
}
