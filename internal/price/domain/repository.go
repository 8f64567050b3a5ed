package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, price *Price) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Price, error)
	ListActiveByProductIDs(ctx context.Context, db *gorm.DB, productIDs []string) ([]Price, error)
}
