package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// RequestCarbonCredits records a pending request and announces it. It
	// never touches inventory or offsets.
	RequestCarbonCredits(ctx context.Context, req RecordRequest) (Result, error)
	Get(ctx context.Context, userID string, id snowflake.ID) (*PurchaseRequest, error)
	// FindByPaymentIntent returns nil, nil when no request references the payment.
	FindByPaymentIntent(ctx context.Context, userID, paymentIntentID string) (*PurchaseRequest, error)
	Credits(ctx context.Context, userID string) ([]PurchasedCredit, error)
}

type RecordRequest struct {
	UserID           string `json:"-"`
	Items            []Item `json:"items"`
	PaymentReference string `json:"payment_intent_id"`
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidPayment    = errors.New("invalid_payment_reference")
	ErrEmptyItems        = errors.New("empty_items")
	ErrInvalidItem       = errors.New("invalid_item")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrDuplicateItem     = errors.New("duplicate_item")
	ErrUnknownProduct    = errors.New("unknown_product")
	ErrPriceUnavailable  = errors.New("price_unavailable")
	ErrMixedCurrency     = errors.New("mixed_currency")
	ErrNotFound          = errors.New("not_found")
	ErrMalformedDocument = errors.New("malformed_document")
)
