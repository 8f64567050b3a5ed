package reconciler

import (
	"context"
	"fmt"

	"github.com/smallbiznis/carbonmarket/internal/clock"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const localAdjustAttempts = 5

// LocalInventory keeps the counter in products.metadata and updates it with
// an optimistic version check.
type LocalInventory struct {
	db       *gorm.DB
	repo     productdomain.Repository
	clock    clock.Clock
	products productdomain.Service
}

func NewLocalInventory(db *gorm.DB, repo productdomain.Repository, clk clock.Clock, products productdomain.Service) *LocalInventory {
	return &LocalInventory{db: db, repo: repo, clock: clk, products: products}
}

func (i *LocalInventory) load(ctx context.Context, productID string) (*productdomain.Product, int64, error) {
	p, err := i.repo.FindByID(ctx, i.db, productID)
	if err != nil {
		return nil, 0, fmt.Errorf("find product %s: %w", productID, err)
	}
	if p == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	remaining, err := p.Remaining()
	if err != nil {
		return nil, 0, fmt.Errorf("product %s: %w", productID, err)
	}
	return p, remaining, nil
}

func (i *LocalInventory) Remaining(ctx context.Context, productID string) (int64, error) {
	_, remaining, err := i.load(ctx, productID)
	return remaining, err
}

func (i *LocalInventory) Adjust(ctx context.Context, productID string, delta int64) (int64, error) {
	for attempt := 0; attempt < localAdjustAttempts; attempt++ {
		p, remaining, err := i.load(ctx, productID)
		if err != nil {
			return 0, err
		}
		next := remaining + delta
		if next < 0 {
			return remaining, fmt.Errorf("%w: %s has %d", ErrInsufficientInventory, productID, remaining)
		}

		metadata := make(datatypes.JSONMap, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			metadata[k] = v
		}
		metadata[productdomain.MetadataRemaining] = next

		ok, err := i.repo.UpdateMetadata(ctx, i.db, productID, metadata, p.Version, i.clock.Now())
		if err != nil {
			return 0, fmt.Errorf("update product %s: %w", productID, err)
		}
		if ok {
			if i.products != nil {
				i.products.Invalidate()
			}
			return next, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrConcurrentUpdate, productID)
}
