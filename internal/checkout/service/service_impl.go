package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/smallbiznis/carbonmarket/internal/cart/domain"
	"github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"github.com/smallbiznis/carbonmarket/internal/poll"
	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pollOperation = "checkout_session"

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Store      domain.SessionStore
	PriceSvc   pricedomain.Service
	CartSvc    cartdomain.Service
	Polling    *config.PollingConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	store      domain.SessionStore
	priceSvc   pricedomain.Service
	cartSvc    cartdomain.Service
	polling    *config.PollingConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		store:      p.Store,
		priceSvc:   p.PriceSvc,
		cartSvc:    p.CartSvc,
		polling:    p.Polling,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateOneTimeSession(ctx context.Context, req domain.OneTimeRequest) (*domain.Secrets, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	if req.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency != "" && len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	// The charge is always the server-side cart total; a client amount is
	// only checked against it.
	total, err := s.cartSvc.Total(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("price cart: %w", err)
	}
	if req.Amount != 0 && req.Amount != total.Amount {
		return nil, fmt.Errorf("%w: client %d, cart %d", domain.ErrAmountMismatch, req.Amount, total.Amount)
	}
	if currency != "" && currency != total.Currency {
		return nil, fmt.Errorf("%w: client %s, cart %s", domain.ErrAmountMismatch, currency, total.Currency)
	}

	amount := total.Amount
	session := s.newSession(userID, domain.ModePayment)
	session.Amount = &amount
	session.Currency = &total.Currency
	return s.open(ctx, session)
}

func (s *Service) CreateSubscriptionSession(ctx context.Context, req domain.SubscriptionRequest) (*domain.Secrets, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return nil, domain.ErrInvalidPrice
	}

	price, err := s.priceSvc.Get(ctx, priceID)
	if errors.Is(err, pricedomain.ErrNotFound) || errors.Is(err, pricedomain.ErrInactive) {
		return nil, domain.ErrInvalidPrice
	}
	if err != nil {
		return nil, fmt.Errorf("load price %s: %w", priceID, err)
	}
	if !price.Active || price.Recurring() == nil {
		return nil, domain.ErrInvalidPrice
	}

	session := s.newSession(userID, domain.ModeSubscription)
	session.PriceID = &priceID
	return s.open(ctx, session)
}

func (s *Service) newSession(userID string, mode domain.Mode) *domain.Session {
	now := s.clock.Now()
	return &domain.Session{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Mode:      mode,
		Client:    domain.ClientMobile,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// open writes the session and waits for the fulfiller to attach the secrets.
func (s *Service) open(ctx context.Context, session *domain.Session) (*domain.Secrets, error) {
	log := s.log.With(
		zap.String("session_id", session.ID.String()),
		zap.String("mode", string(session.Mode)),
	)

	if err := s.store.Create(ctx, session); err != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, string(session.Mode), "create_failed")
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	budget := s.polling.Get().CheckoutSession
	res, err := poll.Until(ctx, poll.Budget{Interval: budget.Interval, MaxAttempts: budget.MaxAttempts},
		func(ctx context.Context, attempt int) (domain.Secrets, bool, error) {
			s.obsMetrics.RecordPollAttempt(ctx, pollOperation)
			current, err := s.store.Get(ctx, session.UserID, session.ID)
			if err != nil {
				return domain.Secrets{}, false, fmt.Errorf("read checkout session: %w", err)
			}
			if current == nil {
				return domain.Secrets{}, false, domain.ErrSessionMissing
			}
			if current.Failed() {
				return domain.Secrets{}, false, fmt.Errorf("%w: %s", domain.ErrSessionFailed, current.ErrorMessage)
			}
			secrets := current.Secrets()
			return secrets, secrets.Complete(), nil
		})
	if err != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, string(session.Mode), "error")
		log.Warn("checkout session poll aborted", zap.Int("attempts", res.Attempts), zap.Error(err))
		return nil, err
	}
	if res.Outcome != poll.Ready {
		s.obsMetrics.RecordCheckoutSession(ctx, string(session.Mode), "timed_out")
		log.Warn("checkout session not fulfilled in time", zap.Int("attempts", res.Attempts))
		return nil, domain.ErrSessionTimeout
	}

	s.obsMetrics.RecordCheckoutSession(ctx, string(session.Mode), "ready")
	log.Info("checkout session ready", zap.Int("attempts", res.Attempts))
	secrets := res.Value
	return &secrets, nil
}
