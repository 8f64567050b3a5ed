package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	Save(ctx context.Context, req SaveRequest) (*Document, error)
	// Get returns nil, nil when the user has no document for month.
	Get(ctx context.Context, userID, month string) (*Document, error)
	// AddOffset runs inside the caller's transaction.
	AddOffset(ctx context.Context, tx *gorm.DB, userID, month string, delta int64) error
	CommunityStats(ctx context.Context) (*CommunityStats, error)
}

type SaveRequest struct {
	UserID    string             `json:"-"`
	Month     string             `json:"-"`
	Inputs    map[string]any     `json:"inputs"`
	Subtotals map[string]float64 `json:"subtotals"`
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidMonth      = errors.New("invalid_month")
	ErrInvalidSubtotal   = errors.New("invalid_subtotal")
	ErrInvalidOffset     = errors.New("invalid_offset")
	ErrMalformedDocument = errors.New("malformed_document")
)
