package domain

import (
	"context"
	"errors"
)

type Service interface {
	Get(ctx context.Context, id string) (*Price, error)
	// ActiveByProduct groups the active prices of productIDs in one query.
	ActiveByProduct(ctx context.Context, productIDs []string) (map[string][]Price, error)
	Upsert(ctx context.Context, price Price) error
}

var (
	ErrNotFound      = errors.New("not_found")
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInactive      = errors.New("price_inactive")
)
