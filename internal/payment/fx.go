package payment

import (
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/smallbiznis/carbonmarket/internal/payment/adapters/stripe"
	"github.com/smallbiznis/carbonmarket/internal/payment/domain"
	"github.com/smallbiznis/carbonmarket/internal/payment/repository"
	paymentservice "github.com/smallbiznis/carbonmarket/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) domain.WebhookParser {
		return stripe.NewAdapter(cfg.Stripe.WebhookSecret)
	}),
	fx.Provide(paymentservice.NewService),
)
