package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/warp/stockbook/inventory"
)

// Redis is a Locker backed by bsm/redislock. Locks expire after ttl so a
// crashed holder cannot wedge a product forever.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	retries int
}

// NewRedis builds a Locker on rdb. Obtain retries up to retries times,
// waiting backoff between attempts, before giving up.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, retries int) *Redis {
	return &Redis{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		retries: retries,
	}
}

func (r *Redis) Obtain(ctx context.Context, key string) (Lock, error) {
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.backoff), r.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: could not obtain lock %s", inventory.ErrConcurrentModification, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return &redisLock{lock: l}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

// Release frees the lock. A lock that already expired is not an error: the
// transaction it guarded has finished either way.
func (rl *redisLock) Release(ctx context.Context) error {
	err := rl.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
