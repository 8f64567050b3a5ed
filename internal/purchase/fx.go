package purchase

import (
	"github.com/smallbiznis/carbonmarket/internal/purchase/events"
	"github.com/smallbiznis/carbonmarket/internal/purchase/repository"
	"github.com/smallbiznis/carbonmarket/internal/purchase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchase.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewMirror),
	fx.Provide(service.New),
	events.Module,
)
