package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/SalamEnterprise/claims-askes/internal/clock"
	"github.com/SalamEnterprise/claims-askes/internal/config"
	"github.com/SalamEnterprise/claims-askes/internal/migration"
	"github.com/SalamEnterprise/claims-askes/internal/observability"
	"github.com/SalamEnterprise/claims-askes/internal/server"
	"github.com/SalamEnterprise/claims-askes/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
