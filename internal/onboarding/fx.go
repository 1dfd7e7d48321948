package onboarding

import (
	"github.com/smallbiznis/portal/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.gate",
	fx.Provide(service.NewGate),
)
