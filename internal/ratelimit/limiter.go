package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"printmill/internal/logger"
)

var ErrThrottled = errors.New("rate limit exceeded")

// CounterStore atomically bumps the counter of one fixed window and returns
// the value after the increment. The first increment of a window creates it.
type CounterStore interface {
	Increment(ctx context.Context, identifier, action string, windowStart, expiresAt time.Time) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Rule caps one action at Limit hits per Window.
type Rule struct {
	Action string
	Limit  int64
	Window time.Duration
}

// Decision is the outcome of one check. RetryAfter is only set when the
// request was throttled.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	store  CounterStore
	rules  map[string]Rule
	logger *logger.Logger
	now    func() time.Time
}

func NewLimiter(store CounterStore, log *logger.Logger, rules ...Rule) *Limiter {
	byAction := make(map[string]Rule, len(rules))
	for _, r := range rules {
		byAction[r.Action] = r
	}
	return &Limiter{store: store, rules: byAction, logger: log, now: time.Now}
}

// CheckAndIncrement counts the request against its window and decides whether
// it may proceed. Counting happens in a single atomic store operation, so
// concurrent requests all see a consistent counter and exactly Limit of them
// pass per window.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identifier, action string) (Decision, error) {
	rule, ok := l.rules[action]
	if !ok {
		// Unconfigured actions are not limited.
		return Decision{Allowed: true, Limit: 0, Remaining: 0}, nil
	}

	now := l.now()
	windowStart := now.Truncate(rule.Window)
	windowEnd := windowStart.Add(rule.Window)

	count, err := l.store.Increment(ctx, identifier, action, windowStart, windowEnd)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count %s for %s: %w", action, identifier, err)
	}

	if count > rule.Limit {
		l.logger.Warn("RATELIMIT", fmt.Sprintf("%s throttled on %s: %d/%d in window %s",
			identifier, action, count, rule.Limit, windowStart.Format(time.RFC3339)))
		return Decision{
			Allowed:    false,
			Limit:      rule.Limit,
			Remaining:  0,
			RetryAfter: windowEnd.Sub(now),
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     rule.Limit,
		Remaining: rule.Limit - count,
	}, nil
}

// PurgeExpired garbage-collects windows whose expiry has passed. Meant to run
// periodically from the service main.
func (l *Limiter) PurgeExpired(ctx context.Context) error {
	purged, err := l.store.PurgeExpired(ctx, l.now())
	if err != nil {
		return fmt.Errorf("failed to purge expired windows: %w", err)
	}
	if purged > 0 {
		l.logger.Debug("RATELIMIT", fmt.Sprintf("Purged %d expired windows", purged))
	}
	return nil
}
