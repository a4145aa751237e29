package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter bounds run starts per customer. Thin wrapper around
// github.com/vnmchuo/ratelimiter on Redis.
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, runsPerMinute int64) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(runsPerMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

// Allow reports whether the customer may start another run in the current
// window.
func (l *Limiter) Allow(ctx context.Context, customerID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:customer:%s", customerID)
	res, err := l.store.Allow(ctx, key)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, customerID string) (*extratelimit.Result, error) {
	key := fmt.Sprintf("ratelimit:customer:%s", customerID)
	return l.store.Status(ctx, key)
}
