package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID, month string) (*Document, error)
	// SaveSurvey upserts inputs, sub-totals and total emissions. The offset is untouched.
	SaveSurvey(ctx context.Context, db *gorm.DB, doc *Document) error
	// AddOffset creates the document if missing and adds delta to its offset.
	AddOffset(ctx context.Context, db *gorm.DB, userID, month string, delta int64, now time.Time) error

	FindStats(ctx context.Context, db *gorm.DB) (*CommunityStats, error)
	ApplyStats(ctx context.Context, db *gorm.DB, userMonths int64, emissions float64, now time.Time) error
}
