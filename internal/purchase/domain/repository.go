package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes req unless the user already has a request for the same
	// payment intent; created is false in that case and nothing is written.
	Insert(ctx context.Context, db *gorm.DB, req *PurchaseRequest) (created bool, err error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PurchaseRequest, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, userID, paymentIntentID string) (*PurchaseRequest, error)
	ListPending(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]PurchaseRequest, error)
	// Settle moves a pending request to status; false means it was already settled.
	Settle(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, message string, processedAt time.Time) (bool, error)

	AddCredits(ctx context.Context, db *gorm.DB, userID, productID string, quantity int64, at time.Time) error
	ListCredits(ctx context.Context, db *gorm.DB, userID string) ([]PurchasedCredit, error)
}

// Mirror copies purchase requests to the document store the mobile client
// listens on. It is never read back.
type Mirror interface {
	Put(ctx context.Context, req *PurchaseRequest) error
	UpdateStatus(ctx context.Context, req *PurchaseRequest) error
}
