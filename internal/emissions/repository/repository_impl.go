package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/emissions/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID, month string) (*domain.Document, error) {
	var doc domain.Document
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, month, inputs, subtotals, total_emissions, total_offset, created_at, updated_at
		 FROM emissions
		 WHERE user_id = ? AND month = ?
		 LIMIT 1`,
		userID,
		month,
	).Scan(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.UserID == "" {
		return nil, nil
	}
	return &doc, nil
}

func (r *repo) SaveSurvey(ctx context.Context, db *gorm.DB, doc *domain.Document) error {
	if doc == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO emissions (user_id, month, inputs, subtotals, total_emissions, total_offset, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (user_id, month) DO UPDATE SET
		   inputs = excluded.inputs,
		   subtotals = excluded.subtotals,
		   total_emissions = excluded.total_emissions,
		   updated_at = excluded.updated_at`,
		doc.UserID,
		doc.Month,
		doc.Inputs,
		doc.Subtotals,
		doc.TotalEmissions,
		doc.CreatedAt,
		doc.UpdatedAt,
	).Error
}

func (r *repo) AddOffset(ctx context.Context, db *gorm.DB, userID, month string, delta int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO emissions (user_id, month, inputs, subtotals, total_emissions, total_offset, created_at, updated_at)
		 VALUES (?, ?, '{}', '{}', 0, ?, ?, ?)
		 ON CONFLICT (user_id, month) DO UPDATE SET
		   total_offset = emissions.total_offset + excluded.total_offset,
		   updated_at = excluded.updated_at`,
		userID,
		month,
		delta,
		now,
		now,
	).Error
}

func (r *repo) FindStats(ctx context.Context, db *gorm.DB) (*domain.CommunityStats, error) {
	var stats domain.CommunityStats
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_months, total_emissions, updated_at
		 FROM community_stats
		 WHERE id = ?
		 LIMIT 1`,
		domain.CommunityStatsID,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	if stats.ID == "" {
		return nil, nil
	}
	return &stats, nil
}

func (r *repo) ApplyStats(ctx context.Context, db *gorm.DB, userMonths int64, emissions float64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO community_stats (id, user_months, total_emissions, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   user_months = community_stats.user_months + excluded.user_months,
		   total_emissions = community_stats.total_emissions + excluded.total_emissions,
		   updated_at = excluded.updated_at`,
		domain.CommunityStatsID,
		userMonths,
		emissions,
		now,
	).Error
}
