package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carbonmarket/internal/cart/domain"
)

const defaultMirrorTTL = 15 * time.Minute

// NewMirror returns a no-op mirror when Redis is not configured.
func NewMirror(client *redis.Client) domain.Mirror {
	if client == nil {
		return nopMirror{}
	}
	return NewRedisMirror(client, defaultMirrorTTL)
}

type RedisMirror struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, baseTTL: ttl}
}

func (r *RedisMirror) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, mirrorKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisMirror) Set(ctx context.Context, cart *domain.Cart) error {
	if cart == nil {
		return nil
	}
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// Jitter spreads expiry of carts written in the same burst.
	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	if err := r.client.Set(ctx, mirrorKey(cart.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisMirror) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, mirrorKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func mirrorKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

type nopMirror struct{}

func (nopMirror) Get(context.Context, string) (*domain.Cart, error) { return nil, domain.ErrCacheMiss }

func (nopMirror) Set(context.Context, *domain.Cart) error { return nil }

func (nopMirror) Delete(context.Context, string) error { return nil }
