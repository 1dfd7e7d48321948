package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/account"
	"github.com/smallbiznis/portal/internal/audit"
	"github.com/smallbiznis/portal/internal/auth"
	"github.com/smallbiznis/portal/internal/authorization"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/company"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/invitation"
	"github.com/smallbiznis/portal/internal/migration"
	"github.com/smallbiznis/portal/internal/observability"
	"github.com/smallbiznis/portal/internal/onboarding"
	"github.com/smallbiznis/portal/internal/providers/email"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/server"
	"github.com/smallbiznis/portal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		email.Module,
		migration.Module,

		// Functional Domains
		audit.Module,
		company.Module,
		invitation.Module,
		account.Module,
		auth.Module,
		authorization.Module,
		onboarding.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
