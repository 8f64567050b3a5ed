package reconciler

import (
	"context"
	"errors"

	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
)

// Inventory holds the remaining credit count of each product.
type Inventory interface {
	Remaining(ctx context.Context, productID string) (int64, error)
	// Adjust adds delta to the remaining count and returns the new value. It
	// fails with ErrInsufficientInventory instead of going below zero.
	Adjust(ctx context.Context, productID string, delta int64) (int64, error)
}

var (
	ErrInsufficientInventory = errors.New("insufficient_inventory")
	ErrUnknownProduct        = errors.New("unknown_product")
	ErrConcurrentUpdate      = errors.New("concurrent_inventory_update")
	ErrPaymentCanceled       = errors.New("payment_canceled")
	ErrPaymentMismatch       = errors.New("payment_mismatch")
)

// terminal errors fail the request instead of leaving it for a retry.
func terminal(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, productdomain.ErrInventoryMissing) ||
		errors.Is(err, productdomain.ErrMalformedDocument)
}
