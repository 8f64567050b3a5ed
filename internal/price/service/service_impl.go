package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/price/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("price.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Price, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	price, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find price %s: %w", id, err)
	}
	if price == nil {
		return nil, domain.ErrNotFound
	}
	return price, nil
}

func (s *Service) ActiveByProduct(ctx context.Context, productIDs []string) (map[string][]domain.Price, error) {
	items, err := s.repo.ListActiveByProductIDs(ctx, s.db, productIDs)
	if err != nil {
		return nil, fmt.Errorf("list active prices: %w", err)
	}
	grouped := make(map[string][]domain.Price, len(productIDs))
	for _, item := range items {
		grouped[item.ProductID] = append(grouped[item.ProductID], item)
	}
	return grouped, nil
}

func (s *Service) Upsert(ctx context.Context, price domain.Price) error {
	price.ID = strings.TrimSpace(price.ID)
	if price.ID == "" || strings.TrimSpace(price.ProductID) == "" {
		return domain.ErrInvalidID
	}
	if price.UnitAmount < 0 {
		return domain.ErrInvalidAmount
	}
	price.Currency = strings.ToLower(strings.TrimSpace(price.Currency))
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Upsert(ctx, s.db, &price); err != nil {
		return fmt.Errorf("upsert price %s: %w", price.ID, err)
	}
	return nil
}
