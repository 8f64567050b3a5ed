package domain

import (
	"math"
	"strings"
	"time"
)

type Interval string

const (
	Day   Interval = "day"
	Week  Interval = "week"
	Month Interval = "month"
	Year  Interval = "year"
)

// Price is immutable once created; a change in amount is a new Price.
type Price struct {
	ID                     string    `json:"id" gorm:"primaryKey;type:text"`
	ProductID              string    `json:"product_id" gorm:"column:product_id;type:text;not null;index"`
	Currency               string    `json:"currency" gorm:"type:text;not null"`
	UnitAmount             int64     `json:"unit_amount" gorm:"not null"`
	Active                 bool      `json:"active" gorm:"not null;default:true"`
	RecurringInterval      *string   `json:"-" gorm:"column:recurring_interval;type:text"`
	RecurringIntervalCount *int64    `json:"-" gorm:"column:recurring_interval_count"`
	CreatedAt              time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Price) TableName() string { return "prices" }

type Recurring struct {
	Interval      Interval `json:"interval"`
	IntervalCount int64    `json:"interval_count"`
}

// Recurring returns nil for one-time prices.
func (p Price) Recurring() *Recurring {
	if p.RecurringInterval == nil || strings.TrimSpace(*p.RecurringInterval) == "" {
		return nil
	}
	count := int64(1)
	if p.RecurringIntervalCount != nil && *p.RecurringIntervalCount > 0 {
		count = *p.RecurringIntervalCount
	}
	return &Recurring{
		Interval:      Interval(strings.ToLower(*p.RecurringInterval)),
		IntervalCount: count,
	}
}

// LineAmount is UnitAmount times qty. It reports false for negative inputs
// and on overflow.
func (p Price) LineAmount(qty int64) (int64, bool) {
	unit := p.UnitAmount
	if unit < 0 || qty < 0 {
		return 0, false
	}
	if unit != 0 && qty > math.MaxInt64/unit {
		return 0, false
	}
	return unit * qty, true
}

type Response struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"product_id"`
	Currency   string     `json:"currency"`
	UnitAmount int64      `json:"unit_amount"`
	Active     bool       `json:"active"`
	Recurring  *Recurring `json:"recurring,omitempty"`
}

func ToResponse(p Price) Response {
	return Response{
		ID:         p.ID,
		ProductID:  p.ProductID,
		Currency:   p.Currency,
		UnitAmount: p.UnitAmount,
		Active:     p.Active,
		Recurring:  p.Recurring(),
	}
}
