package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = keyPrefix + "lock:"

// ErrLockNotHeld is returned by Extend when this instance does not hold the lock.
var ErrLockNotHeld = errors.New("lock not held by this instance")

// Lock implements DistributedLock with SET NX PX. Each instance writes its
// own token as the value, so it can only release or extend its own locks.
type Lock struct {
	client *redis.Client
	token  string
}

// NewLock creates a new Redis-backed distributed lock.
func NewLock(client *redis.Client) *Lock {
	host, _ := os.Hostname()
	return &Lock{
		client: client,
		token:  fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.New().String()),
	}
}

// Acquire takes the named lock for ttl. It returns false when another
// instance holds it.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+name, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release drops the named lock if this instance holds it.
func (l *Lock) Release(ctx context.Context, name string) error {
	err := compareAndDelete.Run(ctx, l.client, []string{lockPrefix + name}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// compareAndExpire resets the TTL of KEYS[1] only while it still holds ARGV[1].
var compareAndExpire = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Extend pushes out the expiry of a lock this instance holds.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	n, err := compareAndExpire.Run(ctx, l.client, []string{lockPrefix + name}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lock %s: %w", name, ErrLockNotHeld)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
