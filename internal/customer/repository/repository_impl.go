package repository

import (
	"context"

	"github.com/smallbiznis/carbonmarket/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO stripe_customers (user_id, customer_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		customer.UserID,
		customer.CustomerID,
		customer.CreatedAt,
	).Error
}

func (r *repo) FindByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, customer_id, created_at
		 FROM stripe_customers WHERE user_id = ?`,
		userID,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.UserID == "" {
		return nil, nil
	}
	return &customer, nil
}
