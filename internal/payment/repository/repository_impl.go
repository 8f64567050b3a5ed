package repository

import (
	"context"

	"github.com/smallbiznis/carbonmarket/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertPayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	if p == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, user_id, customer, amount, currency, status, invoice_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   customer = excluded.customer,
		   amount = excluded.amount,
		   currency = excluded.currency,
		   status = excluded.status,
		   invoice_id = CASE WHEN excluded.invoice_id <> '' THEN excluded.invoice_id ELSE payments.invoice_id END,
		   updated_at = excluded.updated_at`,
		p.ID,
		p.UserID,
		p.Customer,
		p.Amount,
		p.Currency,
		p.Status,
		p.InvoiceID,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) UpsertInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	if inv == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, user_id, subscription_id, payment_intent_id, status, amount_paid, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   subscription_id = excluded.subscription_id,
		   payment_intent_id = CASE WHEN excluded.payment_intent_id <> '' THEN excluded.payment_intent_id ELSE invoices.payment_intent_id END,
		   status = excluded.status,
		   amount_paid = excluded.amount_paid,
		   currency = excluded.currency,
		   updated_at = excluded.updated_at`,
		inv.ID,
		inv.UserID,
		inv.SubscriptionID,
		inv.PaymentIntentID,
		inv.Status,
		inv.AmountPaid,
		inv.Currency,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) UpsertSubscription(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	if sub == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, user_id, customer, price_id, status, current_period_end, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   customer = excluded.customer,
		   price_id = excluded.price_id,
		   status = excluded.status,
		   current_period_end = excluded.current_period_end,
		   updated_at = excluded.updated_at`,
		sub.ID,
		sub.UserID,
		sub.Customer,
		sub.PriceID,
		sub.Status,
		sub.CurrentPeriodEnd,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) LinkInvoice(ctx context.Context, db *gorm.DB, paymentID, invoiceID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET invoice_id = ? WHERE id = ? AND invoice_id = ''`,
		invoiceID,
		paymentID,
	).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, customer, amount, currency, status, invoice_id, created_at, updated_at
		 FROM payments
		 WHERE user_id = ? AND id = ?
		 LIMIT 1`,
		userID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, subscription_id, payment_intent_id, status, amount_paid, currency, created_at, updated_at
		 FROM invoices
		 WHERE user_id = ? AND id = ?
		 LIMIT 1`,
		userID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindSubscription(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, customer, price_id, status, current_period_end, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = ? AND id = ?
		 LIMIT 1`,
		userID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindUserByCustomer(ctx context.Context, db *gorm.DB, customer string) (string, error) {
	var userID string
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM stripe_customers WHERE customer_id = ? LIMIT 1`,
		customer,
	).Scan(&userID).Error
	if err != nil {
		return "", err
	}
	return userID, nil
}
