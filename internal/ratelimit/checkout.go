package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"go.uber.org/fx"
)

const keyCheckoutUser = "checkout:user:%s"

// CheckoutLimiter throttles checkout session creation per user.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type CheckoutLimiterParams struct {
	fx.In

	Cfg    config.Config
	Client *redis.Client `optional:"true"`
}

// NewCheckoutLimiter returns nil when limiting is disabled or Redis is absent.
func NewCheckoutLimiter(p CheckoutLimiterParams) (*CheckoutLimiter, error) {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled || p.Client == nil {
		return nil, nil
	}
	if limitCfg.CheckoutUserRate <= 0 || limitCfg.CheckoutUserBurst <= 0 {
		return nil, fmt.Errorf("checkout rate limit must be positive")
	}
	return &CheckoutLimiter{
		bucket: NewTokenBucket(p.Client),
		rate:   limitCfg.CheckoutUserRate,
		burst:  limitCfg.CheckoutUserBurst,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *CheckoutLimiter) AllowUser(ctx context.Context, userID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyCheckoutUser, strings.TrimSpace(userID)), l.rate, l.burst)
}
