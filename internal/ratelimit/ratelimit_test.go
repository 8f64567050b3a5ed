package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "reconcile:1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "reconcile:1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// a lease that lost its key never deletes the new holder's lock
	stale := &Lease{client: client, key: "reconcile:1", token: "stale"}
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("reconcile:1"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("reconcile:1"))
}

func TestLockerExpires(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "reconcile:2", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, "reconcile:2", time.Second)
	assert.NoError(t, err)
}

func TestLockerRejectsInvalidRequest(t *testing.T) {
	_, client := newRedis(t)
	_, err := NewLocker(client).Acquire(context.Background(), "", time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
}

func TestWithLock(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	var inner error
	err := locker.WithLock(ctx, "reconcile:3", time.Minute, func(ctx context.Context) error {
		inner = locker.WithLock(ctx, "reconcile:3", time.Minute, func(context.Context) error { return nil })
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.ErrorIs(t, inner, ErrLockHeld)
	assert.False(t, mr.Exists("reconcile:3"))

	var nilLocker *Locker
	called := false
	require.NoError(t, nilLocker.WithLock(ctx, "k", time.Second, func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestCheckoutLimiterDeniesAfterBurst(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CheckoutUserRate: 0.5, CheckoutUserBurst: 2}}
	limiter, err := NewCheckoutLimiter(CheckoutLimiterParams{Cfg: cfg, Client: client})
	require.NoError(t, err)
	require.True(t, limiter.Enabled())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowUser(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
	}
	res, err := limiter.AllowUser(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := limiter.AllowUser(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestCheckoutLimiterDisabled(t *testing.T) {
	limiter, err := NewCheckoutLimiter(CheckoutLimiterParams{Cfg: config.Config{}})
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketRejectsInvalidBucket(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Take(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
	_, err = bucket.Take(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)

	var missing *TokenBucket
	_, err = missing.Take(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenBucketKeepsFractionalTokens(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	first, err := bucket.Take(ctx, "bucket:frac", 0.5, 3)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.InDelta(t, 2, first.Remaining, 0.1)

	raw, err := client.HGet(ctx, "bucket:frac", "tokens").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}
