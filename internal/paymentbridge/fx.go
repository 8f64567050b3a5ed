package paymentbridge

import (
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentbridge",
	fx.Provide(NewGateway),
	fx.Provide(NewFulfiller),
)

type GatewayParams struct {
	fx.In

	Stripe *client.API `optional:"true"`
}

// NewGateway returns nil without Stripe credentials; the fulfiller then
// stays idle and sessions are expected to be completed by an external
// extension writing to the same store.
func NewGateway(p GatewayParams) Gateway {
	if p.Stripe == nil {
		return nil
	}
	return NewStripeGateway(p.Stripe)
}
