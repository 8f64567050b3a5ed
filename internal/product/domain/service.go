package domain

import (
	"context"
	"errors"
	"time"

	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
)

type Service interface {
	// ListCarbonCreditProducts returns active carbon-credit products with their active prices.
	ListCarbonCreditProducts(ctx context.Context) ([]Product, error)
	// GetProduct returns nil, nil when id does not exist.
	GetProduct(ctx context.Context, id string) (*Product, error)
	Upsert(ctx context.Context, req UpsertRequest) error
	Invalidate()
}

type UpsertRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Active      bool           `json:"active"`
	Type        string         `json:"type"`
	Images      []string       `json:"images"`
	Metadata    map[string]any `json:"metadata"`
}

type Response struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Active      bool                   `json:"active"`
	Type        string                 `json:"type"`
	Images      []string               `json:"images"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Remaining   *int64                 `json:"remaining,omitempty"`
	Prices      []pricedomain.Response `json:"prices"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func ToResponse(p Product) Response {
	resp := Response{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		Type:        p.Type,
		Images:      []string(p.Images),
		Metadata:    map[string]any(p.Metadata),
		Prices:      make([]pricedomain.Response, 0, len(p.Prices)),
		UpdatedAt:   p.UpdatedAt,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if remaining, err := p.Remaining(); err == nil {
		resp.Remaining = &remaining
	}
	for _, price := range p.Prices {
		resp.Prices = append(resp.Prices, pricedomain.ToResponse(price))
	}
	return resp
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInventoryMissing  = errors.New("inventory_missing")
	ErrMalformedDocument = errors.New("malformed_document")
)
