package checkout

import (
	"github.com/smallbiznis/carbonmarket/internal/checkout/repository"
	"github.com/smallbiznis/carbonmarket/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.NewStore),
	fx.Provide(service.New),
)
