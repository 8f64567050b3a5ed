package repository

import (
	"context"

	"github.com/smallbiznis/carbonmarket/internal/price/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, price *domain.Price) error {
	if price == nil {
		return gorm.ErrInvalidData
	}
	// Prices are immutable apart from the active flag.
	return db.WithContext(ctx).Exec(
		`INSERT INTO prices (id, product_id, currency, unit_amount, active, recurring_interval, recurring_interval_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET active = excluded.active`,
		price.ID,
		price.ProductID,
		price.Currency,
		price.UnitAmount,
		price.Active,
		price.RecurringInterval,
		price.RecurringIntervalCount,
		price.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Price, error) {
	var p domain.Price
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, currency, unit_amount, active, recurring_interval, recurring_interval_count, created_at
		 FROM prices WHERE id = ?`,
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

func (r *repo) ListActiveByProductIDs(ctx context.Context, db *gorm.DB, productIDs []string) ([]domain.Price, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var items []domain.Price
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, currency, unit_amount, active, recurring_interval, recurring_interval_count, created_at
		 FROM prices
		 WHERE product_id IN ? AND active = ?
		 ORDER BY product_id ASC, unit_amount ASC, id ASC`,
		productIDs,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
