package domain

import "time"

// Customer links an app user to the payment provider's customer record.
type Customer struct {
	UserID     string    `gorm:"column:user_id;primaryKey" json:"user_id"`
	CustomerID string    `gorm:"column:customer_id;not null;uniqueIndex" json:"customer"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Customer) TableName() string { return "stripe_customers" }
