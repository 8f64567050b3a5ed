package paymentbridge

import (
	"context"
	"errors"
	"fmt"

	checkoutdomain "github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	customerdomain "github.com/smallbiznis/carbonmarket/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultBatchSize = 50

type Params struct {
	fx.In

	Log       *zap.Logger
	Store     checkoutdomain.SessionStore
	Customers customerdomain.Service
	Gateway   Gateway `optional:"true"`
}

// Fulfiller completes pending checkout sessions.
type Fulfiller struct {
	log       *zap.Logger
	store     checkoutdomain.SessionStore
	customers customerdomain.Service
	gateway   Gateway
}

func NewFulfiller(p Params) *Fulfiller {
	return &Fulfiller{
		log:       p.Log.Named("paymentbridge.fulfiller"),
		store:     p.Store,
		customers: p.Customers,
		gateway:   p.Gateway,
	}
}

func (f *Fulfiller) Enabled() bool {
	return f != nil && f.gateway != nil
}

// FulfillPending completes up to limit sessions. Rejected sessions are
// failed so their waiting broker returns early; transient errors leave the
// session for the next run.
func (f *Fulfiller) FulfillPending(ctx context.Context, limit int) (int, error) {
	if !f.Enabled() {
		return 0, nil
	}
	if limit <= 0 {
		limit = defaultBatchSize
	}
	sessions, err := f.store.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending checkout sessions: %w", err)
	}

	done := 0
	var errs []error
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		session := &sessions[i]
		log := f.log.With(
			zap.String("session_id", session.ID.String()),
			zap.String("user_id", session.UserID),
			zap.String("mode", string(session.Mode)),
		)

		err := f.fulfill(ctx, session)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrRejected):
			log.Warn("checkout session rejected", zap.Error(err))
			if failErr := f.store.Fail(ctx, session.UserID, session.ID, err.Error()); failErr != nil {
				errs = append(errs, fmt.Errorf("session %s: %w", session.ID.String(), failErr))
			}
		default:
			log.Warn("checkout session fulfillment deferred", zap.Error(err))
			errs = append(errs, fmt.Errorf("session %s: %w", session.ID.String(), err))
		}
	}
	return done, errors.Join(errs...)
}

func (f *Fulfiller) fulfill(ctx context.Context, session *checkoutdomain.Session) error {
	customer, err := f.ensureCustomer(ctx, session.UserID)
	if err != nil {
		return err
	}
	ephemeralKey, err := f.gateway.CreateEphemeralKey(ctx, customer)
	if err != nil {
		return err
	}

	key := "checkout-" + session.ID.String()
	var clientSecret string
	switch session.Mode {
	case checkoutdomain.ModePayment:
		if session.Amount == nil || *session.Amount <= 0 {
			return fmt.Errorf("%w: payment session without amount", ErrRejected)
		}
		currency := checkoutdomain.DefaultCurrency
		if session.Currency != nil && *session.Currency != "" {
			currency = *session.Currency
		}
		clientSecret, err = f.gateway.CreatePaymentIntent(ctx, PaymentIntentRequest{
			UserID:         session.UserID,
			Customer:       customer,
			Amount:         *session.Amount,
			Currency:       currency,
			IdempotencyKey: key,
		})
	case checkoutdomain.ModeSubscription:
		if session.PriceID == nil || *session.PriceID == "" {
			return fmt.Errorf("%w: subscription session without price", ErrRejected)
		}
		clientSecret, err = f.gateway.CreateSubscription(ctx, SubscriptionRequest{
			UserID:         session.UserID,
			Customer:       customer,
			PriceID:        *session.PriceID,
			IdempotencyKey: key,
		})
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrRejected, session.Mode)
	}
	if err != nil {
		return err
	}

	ok, err := f.store.Fulfill(ctx, session.UserID, session.ID, checkoutdomain.Secrets{
		PaymentIntent: clientSecret,
		EphemeralKey:  ephemeralKey,
		Customer:      customer,
	})
	if err != nil {
		return fmt.Errorf("write session secrets: %w", err)
	}
	if !ok {
		f.log.Debug("checkout session completed elsewhere", zap.String("session_id", session.ID.String()))
	}
	return nil
}

func (f *Fulfiller) ensureCustomer(ctx context.Context, userID string) (string, error) {
	existing, err := f.customers.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.CustomerID, nil
	}

	created, err := f.gateway.CreateCustomer(ctx, userID, "customer-"+userID)
	if err != nil {
		return "", err
	}
	linked, err := f.customers.Link(ctx, userID, created)
	if err != nil {
		return "", err
	}
	return linked.CustomerID, nil
}
