package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
)

// Compare-and-delete: only the holder's token may free the key.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockHeld means another worker is reconciling the same key. It is the
// scheduler's lock_held reason so skipped items are not counted as failures.
var ErrLockHeld = obsmetrics.ErrLockHeld

// Locker hands out short Redis leases so one purchase request is reconciled
// by one worker at a time. Expiry bounds how long a crashed worker blocks it.
type Locker struct {
	client *redis.Client
}

// NewLocker returns nil when Redis is not configured; a nil Locker runs
// every WithLock body unguarded.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes key for ttl, or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	if key == "" || ttl <= 0 {
		return nil, fmt.Errorf("invalid lock request key=%q ttl=%s", key, ttl)
	}

	lease := &Lease{client: l.client, key: key, token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lease, nil
}

// Release frees the lease unless it already expired and changed hands.
func (ls *Lease) Release(ctx context.Context) error {
	if ls == nil {
		return nil
	}
	return unlockScript.Run(ctx, ls.client, []string{ls.key}, ls.token).Err()
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// release even when ctx was cancelled mid-reconcile
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = lease.Release(releaseCtx)
	}()
	return fn(ctx)
}
