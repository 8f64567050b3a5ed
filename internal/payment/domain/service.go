package domain

import (
	"context"
	"errors"
)

// Service keeps read-only mirrors of provider payment records.
type Service interface {
	// IngestWebhook verifies and applies a provider event. Ignored event
	// types return nil.
	IngestWebhook(ctx context.Context, payload []byte, signature string) error

	// Lookups return nil, nil when the record is not mirrored yet.
	FindPayment(ctx context.Context, userID, id string) (*Payment, error)
	FindInvoice(ctx context.Context, userID, id string) (*Invoice, error)
	FindSubscription(ctx context.Context, userID, id string) (*Subscription, error)
}

// WebhookParser verifies a signed provider payload and converts it.
type WebhookParser interface {
	Parse(payload []byte, signature string) (*Event, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrUnknownOwner     = errors.New("unknown_owner")
	ErrNotConfigured    = errors.New("payment_provider_not_configured")
)
