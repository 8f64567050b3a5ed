// Package stripeclient builds the Stripe API client shared by the inventory
// provider and the session fulfiller.
package stripeclient

import (
	"github.com/smallbiznis/carbonmarket/internal/config"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("stripe",
	fx.Provide(New),
)

// New returns nil when STRIPE_SECRET_KEY is unset.
func New(cfg config.Config, log *zap.Logger) *client.API {
	if cfg.Stripe.SecretKey == "" {
		log.Info("stripe api client disabled")
		return nil
	}
	return client.New(cfg.Stripe.SecretKey, nil)
}

// NewWithURL points every backend at url; used against fake servers.
func NewWithURL(key, url string) *client.API {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:           stripe.String(url),
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return client.New(key, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}
