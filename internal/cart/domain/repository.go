package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	List(ctx context.Context, db *gorm.DB, userID string) ([]CartItem, error)
	// Add inserts the item or sums its quantity into the existing row.
	Add(ctx context.Context, db *gorm.DB, item *CartItem) error
	Increment(ctx context.Context, db *gorm.DB, userID, productID string, now time.Time) (bool, error)
	// Decrement lowers a quantity above one; it reports false when the row is
	// missing or already at one.
	Decrement(ctx context.Context, db *gorm.DB, userID, productID string, now time.Time) (bool, error)
	// DeleteIfSingle removes the row only when its quantity is one.
	DeleteIfSingle(ctx context.Context, db *gorm.DB, userID, productID string) (bool, error)
	DeleteAll(ctx context.Context, db *gorm.DB, userID string) error
}

// Mirror holds a cross-device copy of each cart. It is never authoritative.
type Mirror interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Set(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, userID string) error
}
