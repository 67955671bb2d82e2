package adapter

import (
	"context"
	"time"
)

// Locker guards a key across processes. TryLock returns domain.ErrLockBusy when the key
// is held by someone else.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter counts hits per key in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
