package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"github.com/smallbiznis/carbonmarket/internal/observability/tracing"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"github.com/smallbiznis/carbonmarket/internal/purchase/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Mirror     domain.Mirror
	Publisher  events.Publisher
	ProductSvc productdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	mirror     domain.Mirror
	publisher  events.Publisher
	productSvc productdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("purchase.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		mirror:     p.Mirror,
		publisher:  p.Publisher,
		productSvc: p.ProductSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RequestCarbonCredits(ctx context.Context, req domain.RecordRequest) (domain.Result, error) {
	result, err := s.record(ctx, req)
	if err != nil {
		s.obsMetrics.RecordPurchaseRequest(ctx, "failed")
		return domain.Result{Success: false, Error: err.Error()}, err
	}
	s.obsMetrics.RecordPurchaseRequest(ctx, "recorded")
	return result, nil
}

func (s *Service) record(ctx context.Context, req domain.RecordRequest) (domain.Result, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.Result{}, domain.ErrInvalidUser
	}
	paymentRef := strings.TrimSpace(req.PaymentReference)
	if paymentRef == "" {
		return domain.Result{}, domain.ErrInvalidPayment
	}
	items := make([]domain.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.Item{ID: strings.TrimSpace(item.ID), Quantity: item.Quantity})
	}
	if err := domain.ValidateItems(items); err != nil {
		return domain.Result{}, err
	}

	existing, err := s.repo.FindByPaymentIntent(ctx, s.db, userID, paymentRef)
	if err != nil {
		return domain.Result{}, fmt.Errorf("find purchase request: %w", err)
	}
	if existing != nil {
		// The client retried after a lost response.
		return domain.Result{Success: true, RequestID: existing.ID.String()}, nil
	}

	total, currency, err := s.price(ctx, items)
	if err != nil {
		return domain.Result{}, err
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return domain.Result{}, err
	}

	ctx, correlationID := tracing.EnsureCorrelationID(ctx)
	pr := &domain.PurchaseRequest{
		ID:              s.genID.Generate(),
		UserID:          userID,
		Type:            domain.TypeCarbonCredits,
		Items:           datatypes.JSON(payload),
		TotalAmount:     total,
		Currency:        currency,
		PaymentIntentID: paymentRef,
		Status:          domain.StatusPending,
		CreatedAt:       s.clock.Now(),
	}
	created, err := s.repo.Insert(ctx, s.db, pr)
	if err != nil {
		return domain.Result{}, fmt.Errorf("write purchase request: %w", err)
	}
	if !created {
		// A concurrent call for the same payment won the insert.
		winner, err := s.repo.FindByPaymentIntent(ctx, s.db, userID, paymentRef)
		if err != nil {
			return domain.Result{}, fmt.Errorf("find purchase request: %w", err)
		}
		if winner == nil {
			return domain.Result{}, fmt.Errorf("purchase request for %s vanished after conflict", paymentRef)
		}
		return domain.Result{Success: true, RequestID: winner.ID.String()}, nil
	}

	log := s.log.With(
		zap.String("request_id", pr.ID.String()),
		zap.String("correlation_id", correlationID),
	)
	if err := s.mirror.Put(ctx, pr); err != nil {
		log.Warn("purchase request mirror write failed", zap.Error(err))
	}
	if err := s.publisher.PublishCreated(ctx, events.RequestCreated{
		RequestID:     pr.ID.String(),
		UserID:        userID,
		CorrelationID: correlationID,
		CreatedAt:     pr.CreatedAt,
	}); err != nil {
		// The pending sweep picks the request up later.
		log.Warn("purchase request event not published", zap.Error(err))
	}

	log.Info("purchase request recorded", zap.Int64("total_amount", total), zap.Int("items", len(items)))
	return domain.Result{Success: true, RequestID: pr.ID.String()}, nil
}

// price totals the request from each product's active one-time price.
func (s *Service) price(ctx context.Context, items []domain.Item) (int64, string, error) {
	var (
		total    int64
		currency string
	)
	for _, item := range items {
		product, err := s.productSvc.GetProduct(ctx, item.ID)
		if err != nil {
			return 0, "", fmt.Errorf("load product %s: %w", item.ID, err)
		}
		if product == nil || !product.Active {
			return 0, "", fmt.Errorf("%w: %s", domain.ErrUnknownProduct, item.ID)
		}

		price := product.OneTimePrice()
		if price == nil {
			return 0, "", fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, item.ID)
		}
		if currency == "" {
			currency = price.Currency
		} else if currency != price.Currency {
			return 0, "", domain.ErrMixedCurrency
		}
		line, ok := price.LineAmount(item.Quantity)
		if !ok || total > math.MaxInt64-line {
			return 0, "", fmt.Errorf("%w: %s total overflows", domain.ErrInvalidQuantity, item.ID)
		}
		total += line
	}
	return total, currency, nil
}

func (s *Service) Get(ctx context.Context, userID string, id snowflake.ID) (*domain.PurchaseRequest, error) {
	pr, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find purchase request: %w", err)
	}
	if pr == nil || pr.UserID != strings.TrimSpace(userID) {
		return nil, domain.ErrNotFound
	}
	return pr, nil
}

func (s *Service) FindByPaymentIntent(ctx context.Context, userID, paymentIntentID string) (*domain.PurchaseRequest, error) {
	userID, paymentIntentID = strings.TrimSpace(userID), strings.TrimSpace(paymentIntentID)
	if userID == "" || paymentIntentID == "" {
		return nil, nil
	}
	pr, err := s.repo.FindByPaymentIntent(ctx, s.db, userID, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("find purchase request: %w", err)
	}
	return pr, nil
}

func (s *Service) Credits(ctx context.Context, userID string) ([]domain.PurchasedCredit, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListCredits(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchased credits: %w", err)
	}
	return items, nil
}

// IsValidationErr reports errors caused by the caller's input.
func IsValidationErr(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidUser, domain.ErrInvalidPayment, domain.ErrEmptyItems, domain.ErrInvalidItem,
		domain.ErrInvalidQuantity, domain.ErrDuplicateItem, domain.ErrUnknownProduct,
		domain.ErrPriceUnavailable, domain.ErrMixedCurrency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
