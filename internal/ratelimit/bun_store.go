package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"printmill/internal/models"
)

// BunStore keeps window counters in the relational store. The upsert is the
// atomic counting primitive: the first request of a window inserts the row,
// every later one bumps the counter, and the returned value is this request's
// position in the window.
type BunStore struct {
	Bun *bun.DB
}

func (s *BunStore) Increment(ctx context.Context, identifier, action string, windowStart, expiresAt time.Time) (int64, error) {
	counter := &models.RateLimitCounter{
		ID:          uuid.NewString(),
		Identifier:  identifier,
		Action:      action,
		Counter:     1,
		WindowStart: windowStart,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}

	err := s.Bun.NewInsert().
		Model(counter).
		On("CONFLICT (identifier, action, window_start) DO UPDATE").
		Set("counter = rate_limit_counters.counter + 1").
		Set("updated_at = ?", time.Now()).
		Returning("counter").
		Scan(ctx, &counter.Counter)
	if err != nil {
		return 0, err
	}
	return counter.Counter, nil
}

func (s *BunStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Bun.NewDelete().
		Model((*models.RateLimitCounter)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
