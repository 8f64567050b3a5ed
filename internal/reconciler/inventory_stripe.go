package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeInventory keeps the counter in the provider's product metadata.
// Stripe has no conditional update, so writes from this process are
// serialized and cross-process safety relies on the per-request lock.
type StripeInventory struct {
	api *client.API
	mu  sync.Mutex
}

func NewStripeInventory(api *client.API) *StripeInventory {
	return &StripeInventory{api: api}
}

func (i *StripeInventory) Remaining(ctx context.Context, productID string) (int64, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx
	p, err := i.api.Products.Get(productID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return 0, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
		}
		return 0, fmt.Errorf("get product %s: %w", productID, err)
	}
	value, ok := p.Metadata[productdomain.MetadataRemaining]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, productdomain.ErrInventoryMissing)
	}
	remaining, err := productdomain.ParseRemaining(value)
	if err != nil {
		return 0, fmt.Errorf("product %s: %w", productID, err)
	}
	return remaining, nil
}

func (i *StripeInventory) Adjust(ctx context.Context, productID string, delta int64) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	remaining, err := i.Remaining(ctx, productID)
	if err != nil {
		return 0, err
	}
	next := remaining + delta
	if next < 0 {
		return remaining, fmt.Errorf("%w: %s has %d", ErrInsufficientInventory, productID, remaining)
	}

	params := &stripe.ProductParams{}
	params.Context = ctx
	params.AddMetadata(productdomain.MetadataRemaining, strconv.FormatInt(next, 10))
	if _, err := i.api.Products.Update(productID, params); err != nil {
		return 0, fmt.Errorf("update product %s: %w", productID, err)
	}
	return next, nil
}
