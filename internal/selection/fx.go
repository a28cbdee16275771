package selection

import (
	"github.com/smallbiznis/dongi/internal/selection/repository"
	"github.com/smallbiznis/dongi/internal/selection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("selection.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
