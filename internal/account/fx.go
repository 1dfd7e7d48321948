package account

import (
	"github.com/smallbiznis/portal/internal/account/repository"
	"github.com/smallbiznis/portal/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewLinker),
)
