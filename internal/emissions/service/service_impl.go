package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/emissions/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("emissions.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Save(ctx context.Context, req domain.SaveRequest) (*domain.Document, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	month, err := normalizeMonth(req.Month)
	if err != nil {
		return nil, err
	}

	subtotals := make(datatypes.JSONMap, len(req.Subtotals))
	var total float64
	for key, value := range req.Subtotals {
		if strings.TrimSpace(key) == "" || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, domain.ErrInvalidSubtotal
		}
		subtotals[key] = value
		total += value
	}
	inputs := datatypes.JSONMap(req.Inputs)
	if inputs == nil {
		inputs = datatypes.JSONMap{}
	}

	now := s.clock.Now()
	var saved *domain.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := s.repo.Find(ctx, tx, userID, month)
		if err != nil {
			return err
		}

		doc := &domain.Document{
			UserID:         userID,
			Month:          month,
			Inputs:         inputs,
			Subtotals:      subtotals,
			TotalEmissions: total,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.SaveSurvey(ctx, tx, doc); err != nil {
			return err
		}

		userMonths, delta := int64(1), total
		if prev != nil && prev.Surveyed() {
			userMonths, delta = 0, total-prev.TotalEmissions
		}
		if err := s.repo.ApplyStats(ctx, tx, userMonths, delta, now); err != nil {
			return err
		}

		saved, err = s.repo.Find(ctx, tx, userID, month)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save emissions %s/%s: %w", userID, month, err)
	}
	return saved, nil
}

func (s *Service) Get(ctx context.Context, userID, month string) (*domain.Document, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	month, err := normalizeMonth(month)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Find(ctx, s.db, userID, month)
	if err != nil {
		return nil, fmt.Errorf("find emissions: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	if _, err := doc.SubtotalValues(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) AddOffset(ctx context.Context, tx *gorm.DB, userID, month string, delta int64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUser
	}
	month, err := normalizeMonth(month)
	if err != nil {
		return err
	}
	if delta <= 0 {
		return domain.ErrInvalidOffset
	}
	if tx == nil {
		tx = s.db
	}
	return s.repo.AddOffset(ctx, tx, userID, month, delta, s.clock.Now())
}

func (s *Service) CommunityStats(ctx context.Context) (*domain.CommunityStats, error) {
	stats, err := s.repo.FindStats(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("find community stats: %w", err)
	}
	if stats == nil {
		return &domain.CommunityStats{ID: domain.CommunityStatsID}, nil
	}
	return stats, nil
}

func normalizeMonth(month string) (string, error) {
	month = strings.TrimSpace(month)
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", domain.ErrInvalidMonth
	}
	return clock.MonthKey(t), nil
}
