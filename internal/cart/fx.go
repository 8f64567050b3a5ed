package cart

import (
	"github.com/smallbiznis/carbonmarket/internal/cart/domain"
	"github.com/smallbiznis/carbonmarket/internal/cart/hub"
	"github.com/smallbiznis/carbonmarket/internal/cart/repository"
	"github.com/smallbiznis/carbonmarket/internal/cart/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cart.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewMirror),
	fx.Provide(hub.New[domain.Cart]),
	fx.Provide(service.New),
)
