package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshLimiter caps cache-busting dashboard refreshes per tenant per clock
// hour. Counters live in Redis so every replica shares them.
type RefreshLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

func NewRefreshLimiter(redisURL string, limit int) (*RefreshLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	return NewRefreshLimiterWithClient(redis.NewClient(opt), limit), nil
}

func NewRefreshLimiterWithClient(client *redis.Client, limit int) *RefreshLimiter {
	return &RefreshLimiter{client: client, limit: limit, now: time.Now}
}

// Allow counts one refresh for the tenant. A limit of zero or less disables
// limiting.
func (rl *RefreshLimiter) Allow(ctx context.Context, tenantID int64) (bool, error) {
	if rl.limit <= 0 {
		return true, nil
	}

	key := refreshKey(tenantID, rl.now())

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing refresh counter: %w", err)
	}

	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	return count <= int64(rl.limit), nil
}

func (rl *RefreshLimiter) Limit() int { return rl.limit }

func (rl *RefreshLimiter) Close() error {
	return rl.client.Close()
}

func refreshKey(tenantID int64, t time.Time) string {
	return fmt.Sprintf("ratelimit:refresh:tenant:%d:%s", tenantID, t.UTC().Format("2006-01-02-15"))
}
