package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/carbonmarket/internal/cart/hub"
)

type Service interface {
	AddItem(ctx context.Context, req AddItemRequest) (*Cart, error)
	IncrementItem(ctx context.Context, userID, productID string) (*Cart, error)
	// DecrementItem removes the item when its quantity reaches zero.
	DecrementItem(ctx context.Context, userID, productID string) (*Cart, error)
	Clear(ctx context.Context, userID string) error
	Items(ctx context.Context, userID string) (*Cart, error)
	// Total prices every item at its product's active one-time price.
	Total(ctx context.Context, userID string) (*Total, error)
	// Subscribe delivers the current cart and then every change, in order,
	// on a goroutine owned by the subscription.
	Subscribe(ctx context.Context, userID string, fn func(Cart)) (*hub.Subscription[Cart], error)
}

type Total struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Count    int64  `json:"count"`
}

type AddItemRequest struct {
	UserID      string `json:"-"`
	ProductID   string `json:"product_id"`
	ProductType string `json:"product_type"`
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity"`
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidProduct  = errors.New("invalid_product")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrItemNotFound    = errors.New("item_not_found")
	ErrCacheMiss       = errors.New("cache_miss")

	ErrEmptyCart        = errors.New("empty_cart")
	ErrUnknownProduct   = errors.New("unknown_product")
	ErrPriceUnavailable = errors.New("price_unavailable")
	ErrMixedCurrency    = errors.New("mixed_currency")
)
