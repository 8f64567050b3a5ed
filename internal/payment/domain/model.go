package domain

import (
	"time"

	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
)

const ProviderStripe = "stripe"

// Payment intent statuses the purchase flow acts on.
const (
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
)

// Payment mirrors a provider payment intent owned by a user.
type Payment struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	UserID    string    `json:"user_id" gorm:"column:user_id;type:text;not null;index"`
	Customer  string    `json:"customer" gorm:"type:text"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency" gorm:"type:text"`
	Status    string    `json:"status" gorm:"type:text;not null"`
	InvoiceID string    `json:"invoice_id,omitempty" gorm:"column:invoice_id;type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) Succeeded() bool { return p.Status == PaymentSucceeded }

// HasInvoice reports whether the payment settled a subscription invoice.
func (p Payment) HasInvoice() bool { return p.InvoiceID != "" }

type Invoice struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	UserID          string    `json:"user_id" gorm:"column:user_id;type:text;not null"`
	SubscriptionID  string    `json:"subscription_id" gorm:"column:subscription_id;type:text"`
	PaymentIntentID string    `json:"payment_intent_id" gorm:"column:payment_intent_id;type:text"`
	Status          string    `json:"status" gorm:"type:text;not null"`
	AmountPaid      int64     `json:"amount_paid" gorm:"column:amount_paid"`
	Currency        string    `json:"currency" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

type Subscription struct {
	ID               string     `json:"id" gorm:"primaryKey;type:text"`
	UserID           string     `json:"user_id" gorm:"column:user_id;type:text;not null"`
	Customer         string     `json:"customer" gorm:"type:text"`
	PriceID          string     `json:"price_id" gorm:"column:price_id;type:text"`
	Status           string     `json:"status" gorm:"type:text;not null"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty" gorm:"column:current_period_end"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Event is a verified provider event reduced to the record it touches.
// At most one of the record fields is set.
type Event struct {
	Provider string
	ID       string
	Type     string

	Payment      *Payment
	Invoice      *Invoice
	Subscription *Subscription
	Product      *productdomain.UpsertRequest
	Price        *pricedomain.Price

	// Customer finds the owning user when the record carries no user metadata.
	Customer string
}
