package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	UpsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	UpsertInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpsertSubscription(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// LinkInvoice attaches invoiceID to a mirrored payment that has none yet.
	LinkInvoice(ctx context.Context, db *gorm.DB, paymentID, invoiceID string) error

	FindPayment(ctx context.Context, db *gorm.DB, userID, id string) (*Payment, error)
	FindInvoice(ctx context.Context, db *gorm.DB, userID, id string) (*Invoice, error)
	FindSubscription(ctx context.Context, db *gorm.DB, userID, id string) (*Subscription, error)

	// FindUserByCustomer maps a provider customer back to the user it was created for.
	FindUserByCustomer(ctx context.Context, db *gorm.DB, customer string) (string, error)
}
