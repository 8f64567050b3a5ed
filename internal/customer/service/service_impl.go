package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
		log:   p.Log.Named("customer.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.Customer, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	customer, err := s.repo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return customer, nil
}

func (s *Service) Link(ctx context.Context, userID, customerID string) (*domain.Customer, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomer
	}

	if err := s.repo.Insert(ctx, s.db, &domain.Customer{
		UserID:     userID,
		CustomerID: customerID,
		CreatedAt:  s.clock.Now(),
	}); err != nil {
		return nil, fmt.Errorf("link customer: %w", err)
	}

	stored, err := s.repo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("customer for %s vanished after insert", userID)
	}
	if stored.CustomerID != customerID {
		s.log.Warn("provider customer created twice, keeping the first",
			zap.String("user_id", userID),
			zap.String("kept", stored.CustomerID),
			zap.String("orphaned", customerID),
		)
	}
	return stored, nil
}
