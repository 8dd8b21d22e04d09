package directdebit

import (
	"github.com/smallbiznis/jukubill/internal/directdebit/provider"
	"github.com/smallbiznis/jukubill/internal/directdebit/repository"
	"github.com/smallbiznis/jukubill/internal/directdebit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("directdebit.service",
	fx.Provide(provider.Default),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
