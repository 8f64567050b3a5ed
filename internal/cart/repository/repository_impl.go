package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/cart/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID string) ([]domain.CartItem, error) {
	var items []domain.CartItem
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, product_id, product_type, name, quantity, created_at, updated_at
		 FROM cart_items
		 WHERE user_id = ?
		 ORDER BY created_at ASC, product_id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Add(ctx context.Context, db *gorm.DB, item *domain.CartItem) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO cart_items (user_id, product_id, product_type, name, quantity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id) DO UPDATE SET
		   quantity = cart_items.quantity + excluded.quantity,
		   updated_at = excluded.updated_at`,
		item.UserID,
		item.ProductID,
		item.ProductType,
		item.Name,
		item.Quantity,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, userID, productID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE cart_items SET quantity = quantity + 1, updated_at = ?
		 WHERE user_id = ? AND product_id = ?`,
		now,
		userID,
		productID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Decrement(ctx context.Context, db *gorm.DB, userID, productID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE cart_items SET quantity = quantity - 1, updated_at = ?
		 WHERE user_id = ? AND product_id = ? AND quantity > 1`,
		now,
		userID,
		productID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteIfSingle(ctx context.Context, db *gorm.DB, userID, productID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM cart_items WHERE user_id = ? AND product_id = ? AND quantity <= 1`,
		userID,
		productID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteAll(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Exec(`DELETE FROM cart_items WHERE user_id = ?`, userID).Error
}
