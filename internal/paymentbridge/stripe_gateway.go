package paymentbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	paymentstripe "github.com/smallbiznis/carbonmarket/internal/payment/adapters/stripe"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(api *client.API) *StripeGateway {
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, userID, idempotencyKey string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata(paymentstripe.MetadataUserID, userID)

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", classify("create customer", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateEphemeralKey(ctx context.Context, customer string) (string, error) {
	params := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customer),
		StripeVersion: stripe.String(stripe.APIVersion),
	}
	params.Context = ctx

	key, err := g.api.EphemeralKeys.New(params)
	if err != nil {
		return "", classify("create ephemeral key", err)
	}
	return key.Secret, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		Customer: stripe.String(req.Customer),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata(paymentstripe.MetadataUserID, req.UserID)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", classify("create payment intent", err)
	}
	return pi.ClientSecret, nil
}

// CreateSubscription starts a subscription whose first invoice waits for the
// payment sheet, and returns that invoice's client secret.
func (g *StripeGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.Customer),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata(paymentstripe.MetadataUserID, req.UserID)
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return "", classify("create subscription", err)
	}
	if sub.LatestInvoice == nil || sub.LatestInvoice.PaymentIntent == nil {
		return "", fmt.Errorf("%w: subscription %s has no pending payment", ErrRejected, sub.ID)
	}
	return sub.LatestInvoice.PaymentIntent.ClientSecret, nil
}

func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := stripeErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusConflict {
			return fmt.Errorf("%s: %w: %s", op, ErrRejected, stripeErr.Msg)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
