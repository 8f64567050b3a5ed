package domain

import (
	"context"
	"errors"
)

type Service interface {
	CreateOneTimeSession(ctx context.Context, req OneTimeRequest) (*Secrets, error)
	CreateSubscriptionSession(ctx context.Context, req SubscriptionRequest) (*Secrets, error)
}

type OneTimeRequest struct {
	UserID   string `json:"-"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type SubscriptionRequest struct {
	UserID  string `json:"-"`
	PriceID string `json:"price_id"`
}

const DefaultCurrency = "usd"

var (
	// ErrSessionTimeout also covers sessions left partially filled.
	ErrSessionTimeout = errors.New("additional fields were not added within the expected time")
	ErrSessionFailed  = errors.New("checkout_session_failed")
	ErrSessionMissing = errors.New("checkout_session_missing")

	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidPrice    = errors.New("invalid_price")
	// ErrAmountMismatch means the client's amount or currency disagrees with
	// the priced cart.
	ErrAmountMismatch = errors.New("amount_mismatch")
)
