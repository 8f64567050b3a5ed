// Package paymentbridge completes checkout sessions: it creates the provider
// objects a mobile payment sheet needs and writes their secrets back.
package paymentbridge

import (
	"context"
	"errors"
)

// ErrRejected marks a provider refusal that retrying cannot fix.
var ErrRejected = errors.New("payment_provider_rejected")

// Gateway creates the provider-side objects for a checkout session. Every
// call carries an idempotency key so a retried job does not duplicate them.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID, idempotencyKey string) (string, error)
	CreateEphemeralKey(ctx context.Context, customer string) (string, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (string, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error)
}

type PaymentIntentRequest struct {
	UserID         string
	Customer       string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type SubscriptionRequest struct {
	UserID         string
	Customer       string
	PriceID        string
	IdempotencyKey string
}
