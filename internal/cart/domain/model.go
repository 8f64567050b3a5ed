package domain

import (
	"time"
)

type CartItem struct {
	UserID      string    `json:"-" gorm:"column:user_id;primaryKey"`
	ProductID   string    `json:"product_id" gorm:"column:product_id;primaryKey"`
	ProductType string    `json:"product_type" gorm:"column:product_type"`
	Name        string    `json:"name"`
	Quantity    int64     `json:"quantity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CartItem) TableName() string { return "cart_items" }

// Cart is the snapshot delivered to readers and subscribers.
type Cart struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// Count sums the quantities of every item.
func (c Cart) Count() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Quantity returns 0 for products not in the cart.
func (c Cart) Quantity(productID string) int64 {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}
