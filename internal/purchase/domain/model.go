package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const TypeCarbonCredits = "carbonCredits"

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Item is one requested product and its quantity.
type Item struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

// PurchaseRequest is written once as pending and settled once by the reconciler.
type PurchaseRequest struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID          string         `json:"user_id" gorm:"column:user_id;type:text;not null;index"`
	Type            string         `json:"type" gorm:"type:text;not null"`
	Items           datatypes.JSON `json:"items" gorm:"type:jsonb;not null"`
	TotalAmount     int64          `json:"totalAmount" gorm:"column:total_amount"`
	Currency        string         `json:"currency" gorm:"type:text"`
	PaymentIntentID string         `json:"paymentIntentId" gorm:"column:payment_intent_id;type:text;not null"`
	Status          Status         `json:"status" gorm:"type:text;not null"`
	ErrorMessage    string         `json:"errorMessage,omitempty" gorm:"column:error_message"`
	CreatedAt       time.Time      `json:"created_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (PurchaseRequest) TableName() string { return "purchase_requests" }

func (r PurchaseRequest) Settled() bool { return r.Status != StatusPending }

// ParseItems decodes and validates the stored item list.
func (r PurchaseRequest) ParseItems() ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(r.Items, &items); err != nil {
		return nil, fmt.Errorf("%w: items: %v", ErrMalformedDocument, err)
	}
	if err := ValidateItems(items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return items, nil
}

// ValidateItems rejects empty lists, blank ids, non-positive quantities and duplicates.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return ErrInvalidItem
		}
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if _, dup := seen[id]; dup {
			return ErrDuplicateItem
		}
		seen[id] = struct{}{}
	}
	return nil
}

// TotalQuantity sums the credits of a validated item list.
func TotalQuantity(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// PurchasedCredit is the per-user, per-product running total.
type PurchasedCredit struct {
	UserID          string    `json:"-" gorm:"column:user_id;primaryKey"`
	ProductID       string    `json:"product_id" gorm:"column:product_id;primaryKey"`
	Quantity        int64     `json:"quantity"`
	FirstPurchaseAt time.Time `json:"first_purchase_at" gorm:"column:first_purchase_at"`
	LastPurchaseAt  time.Time `json:"last_purchase_at" gorm:"column:last_purchase_at"`
}

func (PurchasedCredit) TableName() string { return "purchased_credits" }

// Result reports the outcome of recording a purchase request.
type Result struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}
