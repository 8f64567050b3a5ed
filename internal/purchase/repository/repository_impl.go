package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"gorm.io/gorm"
)

const requestColumns = `id, user_id, type, items, total_amount, currency, payment_intent_id,
	status, error_message, created_at, processed_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.PurchaseRequest) (bool, error) {
	if req == nil {
		return false, gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO purchase_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, payment_intent_id) DO NOTHING`,
		req.ID,
		req.UserID,
		req.Type,
		req.Items,
		req.TotalAmount,
		req.Currency,
		req.PaymentIntentID,
		req.Status,
		req.ErrorMessage,
		req.CreatedAt,
		req.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PurchaseRequest, error) {
	var item domain.PurchaseRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+` FROM purchase_requests WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, userID, paymentIntentID string) (*domain.PurchaseRequest, error) {
	var item domain.PurchaseRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+`
		 FROM purchase_requests
		 WHERE user_id = ? AND payment_intent_id = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		userID,
		paymentIntentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]domain.PurchaseRequest, error) {
	var items []domain.PurchaseRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+requestColumns+`
		 FROM purchase_requests
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		domain.StatusPending,
		createdBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Settle(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, message string, processedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE purchase_requests
		 SET status = ?, error_message = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		message,
		processedAt,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AddCredits(ctx context.Context, db *gorm.DB, userID, productID string, quantity int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO purchased_credits (user_id, product_id, quantity, first_purchase_at, last_purchase_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id) DO UPDATE SET
		   quantity = purchased_credits.quantity + excluded.quantity,
		   last_purchase_at = excluded.last_purchase_at`,
		userID,
		productID,
		quantity,
		at,
		at,
	).Error
}

func (r *repo) ListCredits(ctx context.Context, db *gorm.DB, userID string) ([]domain.PurchasedCredit, error) {
	var items []domain.PurchasedCredit
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, product_id, quantity, first_purchase_at, last_purchase_at
		 FROM purchased_credits
		 WHERE user_id = ?
		 ORDER BY first_purchase_at ASC, product_id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
