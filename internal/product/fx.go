package product

import (
	"github.com/smallbiznis/carbonmarket/internal/cache"
	"github.com/smallbiznis/carbonmarket/internal/product/repository"
	"github.com/smallbiznis/carbonmarket/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewCatalogCache),
	fx.Provide(service.New),
)
