// Package resolver answers "what did this payment buy" once the reconciler
// has caught up with the payment the client just confirmed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/carbonmarket/internal/config"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/carbonmarket/internal/payment/domain"
	"github.com/smallbiznis/carbonmarket/internal/poll"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	purchasedomain "github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pollOperation = "purchase_complete"

var (
	// ErrNotFound means the purchase did not become visible within the
	// budget. Clients should show "still processing" and retry later.
	ErrNotFound         = errors.New("purchase_not_found")
	ErrInvalidReference = errors.New("invalid_payment_reference")
)

var Module = fx.Module("resolver",
	fx.Provide(New),
)

// Resolution holds either purchased items or a subscription.
type Resolution struct {
	Payment      *paymentdomain.Payment          `json:"payment"`
	Request      *purchasedomain.PurchaseRequest `json:"request,omitempty"`
	Items        []ResolvedItem                  `json:"items,omitempty"`
	Invoice      *paymentdomain.Invoice          `json:"invoice,omitempty"`
	Subscription *paymentdomain.Subscription     `json:"subscription,omitempty"`
	Attempts     int                             `json:"-"`
}

type ResolvedItem struct {
	ProductID   string   `json:"product_id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	Quantity    int64    `json:"quantity"`
	UnitAmount  int64    `json:"unit_amount,omitempty"`
	Currency    string   `json:"currency,omitempty"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Payments   paymentdomain.Service
	Purchases  purchasedomain.Service
	Products   productdomain.Service
	Polling    *config.PollingConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Resolver struct {
	log        *zap.Logger
	payments   paymentdomain.Service
	purchases  purchasedomain.Service
	products   productdomain.Service
	polling    *config.PollingConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Resolver {
	return &Resolver{
		log:        p.Log.Named("resolver"),
		payments:   p.Payments,
		purchases:  p.Purchases,
		products:   p.Products,
		polling:    p.Polling,
		obsMetrics: p.ObsMetrics,
	}
}

// ResolvePurchase repeats the same lookup until it is complete. Store errors
// abort immediately; an exhausted budget is ErrNotFound.
func (r *Resolver) ResolvePurchase(ctx context.Context, userID, paymentReference string) (*Resolution, error) {
	userID, paymentReference = strings.TrimSpace(userID), strings.TrimSpace(paymentReference)
	if userID == "" || paymentReference == "" {
		return nil, ErrInvalidReference
	}

	budget := r.polling.Get().PurchaseComplete
	res, err := poll.Until(ctx, poll.Budget{Interval: budget.Interval, MaxAttempts: budget.MaxAttempts},
		func(ctx context.Context, attempt int) (*Resolution, bool, error) {
			r.obsMetrics.RecordPollAttempt(ctx, pollOperation)
			return r.lookup(ctx, userID, paymentReference)
		})
	if err != nil {
		return nil, err
	}
	if res.Outcome != poll.Ready {
		r.log.Info("purchase not visible yet",
			zap.String("payment_id", paymentReference),
			zap.Int("attempts", res.Attempts),
		)
		return nil, ErrNotFound
	}
	res.Value.Attempts = res.Attempts
	return res.Value, nil
}

func (r *Resolver) lookup(ctx context.Context, userID, paymentID string) (*Resolution, bool, error) {
	payment, err := r.payments.FindPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, nil
	}
	out := &Resolution{Payment: payment}

	if payment.HasInvoice() {
		invoice, err := r.payments.FindInvoice(ctx, userID, payment.InvoiceID)
		if err != nil || invoice == nil || invoice.SubscriptionID == "" {
			return out, false, err
		}
		out.Invoice = invoice
		sub, err := r.payments.FindSubscription(ctx, userID, invoice.SubscriptionID)
		if err != nil || sub == nil {
			return out, false, err
		}
		out.Subscription = sub
		return out, true, nil
	}

	pr, err := r.purchases.FindByPaymentIntent(ctx, userID, paymentID)
	if err != nil || pr == nil || !pr.Settled() {
		return out, false, err
	}
	out.Request = pr

	items, err := pr.ParseItems()
	if err != nil {
		return nil, false, err
	}
	out.Items = make([]ResolvedItem, 0, len(items))
	for _, item := range items {
		resolved := ResolvedItem{ProductID: item.ID, Quantity: item.Quantity}
		product, err := r.products.GetProduct(ctx, item.ID)
		if err != nil {
			return nil, false, fmt.Errorf("load product %s: %w", item.ID, err)
		}
		if product != nil {
			resolved.Name = product.Name
			resolved.Description = product.Description
			resolved.Images = []string(product.Images)
			if price := product.OneTimePrice(); price != nil {
				resolved.UnitAmount = price.UnitAmount
				resolved.Currency = price.Currency
			}
		}
		out.Items = append(out.Items, resolved)
	}
	return out, true, nil
}
