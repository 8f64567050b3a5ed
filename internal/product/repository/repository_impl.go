package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/product/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `id, name, description, active, type, images, metadata, version, created_at, updated_at`

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (`+productColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   active = excluded.active,
		   type = excluded.type,
		   images = excluded.images,
		   metadata = excluded.metadata,
		   version = products.version + 1,
		   updated_at = excluded.updated_at`,
		product.ID,
		product.Name,
		product.Description,
		product.Active,
		product.Type,
		product.Images,
		product.Metadata,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListActiveByType(ctx context.Context, db *gorm.DB, productType string) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products
		 WHERE type = ? AND active = ?
		 ORDER BY name ASC, id ASC`,
		productType,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateMetadata(ctx context.Context, db *gorm.DB, id string, metadata datatypes.JSONMap, expectedVersion int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET metadata = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		metadata,
		now,
		id,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
