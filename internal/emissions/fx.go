package emissions

import (
	"github.com/smallbiznis/carbonmarket/internal/emissions/repository"
	"github.com/smallbiznis/carbonmarket/internal/emissions/service"
	"go.uber.org/fx"
)

var Module = fx.Module("emissions.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
