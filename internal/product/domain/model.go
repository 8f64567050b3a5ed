package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	"gorm.io/datatypes"
)

const (
	TypeCarbonCredit = "carbon_credit"

	// MetadataRemaining is the metadata key holding the remaining inventory.
	MetadataRemaining = "remaining"
	MetadataType      = "type"
)

type Product struct {
	ID          string                      `json:"id" gorm:"primaryKey;type:text"`
	Name        string                      `json:"name" gorm:"type:text;not null"`
	Description string                      `json:"description" gorm:"type:text"`
	Active      bool                        `json:"active" gorm:"not null;default:true"`
	Type        string                      `json:"type" gorm:"type:text;not null"`
	Images      datatypes.JSONSlice[string] `json:"images" gorm:"type:jsonb"`
	Metadata    datatypes.JSONMap           `json:"metadata,omitempty" gorm:"type:jsonb"`
	Version     int64                       `json:"-" gorm:"not null;default:0"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Prices []pricedomain.Price `json:"-" gorm:"-"`
}

func (Product) TableName() string { return "products" }

// OneTimePrice returns the first active non-recurring price, or nil.
func (p Product) OneTimePrice() *pricedomain.Price {
	for i := range p.Prices {
		if p.Prices[i].Active && p.Prices[i].Recurring() == nil {
			return &p.Prices[i]
		}
	}
	return nil
}

// Remaining reads the inventory counter from metadata.
func (p Product) Remaining() (int64, error) {
	if p.Metadata == nil {
		return 0, ErrInventoryMissing
	}
	value, ok := p.Metadata[MetadataRemaining]
	if !ok || value == nil {
		return 0, ErrInventoryMissing
	}
	return ParseRemaining(value)
}

// ParseRemaining accepts the shapes a metadata value arrives in: JSON numbers
// from the local store and decimal strings from the payment provider.
func ParseRemaining(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("%w: remaining %v is not an integer", ErrMalformedDocument, v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: remaining %q: %v", ErrMalformedDocument, v.String(), err)
		}
		return n, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, ErrInventoryMissing
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: remaining %q", ErrMalformedDocument, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: remaining has type %T", ErrMalformedDocument, value)
	}
}
