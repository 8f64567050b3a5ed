package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Product, error)
	ListActiveByType(ctx context.Context, db *gorm.DB, productType string) ([]Product, error)
	// UpdateMetadata writes metadata only if the row is still at expectedVersion.
	UpdateMetadata(ctx context.Context, db *gorm.DB, id string, metadata datatypes.JSONMap, expectedVersion int64, now time.Time) (bool, error)
}
