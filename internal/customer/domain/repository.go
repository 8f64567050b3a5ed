package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert keeps an existing mapping for the user.
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByUser(ctx context.Context, db *gorm.DB, userID string) (*Customer, error)
}
