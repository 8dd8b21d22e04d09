package deadline

import (
	"github.com/smallbiznis/jukubill/internal/deadline/service"
	"go.uber.org/fx"
)

var Module = fx.Module("deadline.service",
	fx.Provide(service.NewService),
)
