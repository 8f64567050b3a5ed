package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/carbonmarket/internal/clock"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"github.com/smallbiznis/carbonmarket/internal/payment/domain"
	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Parser     domain.WebhookParser
	ProductSvc productdomain.Service
	PriceSvc   pricedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	parser     domain.WebhookParser
	productSvc productdomain.Service
	priceSvc   pricedomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		parser:     p.Parser,
		productSvc: p.ProductSvc,
		priceSvc:   p.PriceSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.parser == nil {
		return domain.ErrNotConfigured
	}
	event, err := s.parser.Parse(payload, signature)
	if errors.Is(err, domain.ErrEventIgnored) {
		return nil
	}
	if err != nil {
		return err
	}

	log := s.log.With(
		zap.String("provider", event.Provider),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	switch {
	case event.Product != nil:
		err = s.productSvc.Upsert(ctx, *event.Product)
	case event.Price != nil:
		if err = s.priceSvc.Upsert(ctx, *event.Price); err == nil {
			s.productSvc.Invalidate()
		}
	default:
		err = s.applyRecord(ctx, event)
	}
	if errors.Is(err, domain.ErrUnknownOwner) {
		// Objects created outside the checkout flow carry no user.
		log.Warn("payment event has no owning user, skipped", zap.String("customer", event.Customer))
		return nil
	}
	if err != nil {
		return err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	log.Info("payment event applied")
	return nil
}

func (s *Service) applyRecord(ctx context.Context, event *domain.Event) error {
	userID, err := s.resolveOwner(ctx, event)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch {
		case event.Payment != nil:
			event.Payment.UserID = userID
			event.Payment.UpdatedAt = now
			if err := s.repo.UpsertPayment(ctx, tx, event.Payment); err != nil {
				return fmt.Errorf("upsert payment %s: %w", event.Payment.ID, err)
			}
		case event.Invoice != nil:
			event.Invoice.UserID = userID
			event.Invoice.UpdatedAt = now
			if err := s.repo.UpsertInvoice(ctx, tx, event.Invoice); err != nil {
				return fmt.Errorf("upsert invoice %s: %w", event.Invoice.ID, err)
			}
			if event.Invoice.PaymentIntentID != "" {
				if err := s.repo.LinkInvoice(ctx, tx, event.Invoice.PaymentIntentID, event.Invoice.ID); err != nil {
					return fmt.Errorf("link invoice %s: %w", event.Invoice.ID, err)
				}
			}
		case event.Subscription != nil:
			event.Subscription.UserID = userID
			event.Subscription.UpdatedAt = now
			if err := s.repo.UpsertSubscription(ctx, tx, event.Subscription); err != nil {
				return fmt.Errorf("upsert subscription %s: %w", event.Subscription.ID, err)
			}
		default:
			return domain.ErrInvalidEvent
		}
		return nil
	})
}

func (s *Service) resolveOwner(ctx context.Context, event *domain.Event) (string, error) {
	var userID string
	switch {
	case event.Payment != nil:
		userID = event.Payment.UserID
	case event.Invoice != nil:
		userID = event.Invoice.UserID
	case event.Subscription != nil:
		userID = event.Subscription.UserID
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID, nil
	}
	if event.Customer == "" {
		return "", domain.ErrUnknownOwner
	}

	userID, err := s.repo.FindUserByCustomer(ctx, s.db, event.Customer)
	if err != nil {
		return "", fmt.Errorf("find customer owner: %w", err)
	}
	if userID == "" {
		return "", domain.ErrUnknownOwner
	}
	return userID, nil
}

func (s *Service) FindPayment(ctx context.Context, userID, id string) (*domain.Payment, error) {
	userID, id = strings.TrimSpace(userID), strings.TrimSpace(id)
	if userID == "" || id == "" {
		return nil, nil
	}
	p, err := s.repo.FindPayment(ctx, s.db, userID, id)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func (s *Service) FindInvoice(ctx context.Context, userID, id string) (*domain.Invoice, error) {
	userID, id = strings.TrimSpace(userID), strings.TrimSpace(id)
	if userID == "" || id == "" {
		return nil, nil
	}
	inv, err := s.repo.FindInvoice(ctx, s.db, userID, id)
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return inv, nil
}

func (s *Service) FindSubscription(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	userID, id = strings.TrimSpace(userID), strings.TrimSpace(id)
	if userID == "" || id == "" {
		return nil, nil
	}
	sub, err := s.repo.FindSubscription(ctx, s.db, userID, id)
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return sub, nil
}
