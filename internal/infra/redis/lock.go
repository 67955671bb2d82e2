package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"license-billing/internal/domain"
	"license-billing/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker is a SET NX lock with a token so only the holder can release it.
type RedisLocker struct {
	cli     *redis.Client
	retries int
	backoff time.Duration
}

// NewLocker returns a locker that gives up after retries extra attempts.
func NewLocker(c *Client, retries int, backoff time.Duration) *RedisLocker {
	if retries < 0 {
		retries = 0
	}
	return &RedisLocker{cli: c.cli, retries: retries, backoff: backoff}
}

// TryLock returns domain.ErrLockBusy while another holder owns key. Redis errors are
// returned as is so callers can tell contention from an outage.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; ; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if i >= l.retries {
			return "", domain.ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
