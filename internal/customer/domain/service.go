package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Get returns nil, nil when the user has no provider customer yet.
	Get(ctx context.Context, userID string) (*Customer, error)
	// Link stores customerID for the user unless one exists, and returns the
	// mapping that won.
	Link(ctx context.Context, userID, customerID string) (*Customer, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidCustomer = errors.New("invalid_customer")
)
