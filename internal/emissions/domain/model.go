package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
)

// CommunityStatsID keys the single aggregate row.
const CommunityStatsID = "emissions_stats"

// Document is one user's emissions survey for a calendar month.
type Document struct {
	UserID         string            `json:"user_id" gorm:"column:user_id;primaryKey"`
	Month          string            `json:"month" gorm:"primaryKey"`
	Inputs         datatypes.JSONMap `json:"inputs" gorm:"type:jsonb"`
	Subtotals      datatypes.JSONMap `json:"subtotals" gorm:"type:jsonb"`
	TotalEmissions float64           `json:"total_emissions" gorm:"column:total_emissions"`
	TotalOffset    int64             `json:"total_offset" gorm:"column:total_offset"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (Document) TableName() string { return "emissions" }

// Surveyed reports whether the survey was ever saved. Documents created by
// an offset alone are not surveyed.
func (d Document) Surveyed() bool {
	return len(d.Inputs) > 0 || len(d.Subtotals) > 0
}

// NetEmissions subtracts offset credits (one tonne each) from the total.
func (d Document) NetEmissions() float64 {
	return d.TotalEmissions - float64(d.TotalOffset)
}

// SubtotalValues decodes the stored sub-totals.
func (d Document) SubtotalValues() (map[string]float64, error) {
	out := make(map[string]float64, len(d.Subtotals))
	for key, raw := range d.Subtotals {
		value, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: subtotal %q: %v", ErrMalformedDocument, key, err)
		}
		out[key] = value
	}
	return out, nil
}

type CommunityStats struct {
	ID             string    `json:"-" gorm:"primaryKey"`
	UserMonths     int64     `json:"user_months" gorm:"column:user_months"`
	TotalEmissions float64   `json:"total_emissions" gorm:"column:total_emissions"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (CommunityStats) TableName() string { return "community_stats" }

// Average is the mean monthly emissions per surveyed user-month.
func (s CommunityStats) Average() float64 {
	if s.UserMonths <= 0 {
		return 0
	}
	return s.TotalEmissions / float64(s.UserMonths)
}

func toFloat(raw any) (float64, error) {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, err
		}
		value = parsed
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return value, nil
}
