package invitation

import (
	"github.com/smallbiznis/portal/internal/invitation/repository"
	"github.com/smallbiznis/portal/internal/invitation/service"
	"github.com/smallbiznis/portal/internal/invitation/token"
	"go.uber.org/fx"
)

var Module = fx.Module("invitation.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(token.New),
	fx.Provide(service.NewService),
)
