package price

import (
	"github.com/smallbiznis/carbonmarket/internal/price/repository"
	"github.com/smallbiznis/carbonmarket/internal/price/service"
	"go.uber.org/fx"
)

var Module = fx.Module("price.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
