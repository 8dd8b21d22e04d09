package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	"github.com/smallbiznis/jukubill/internal/migration"
	"github.com/smallbiznis/jukubill/internal/observability"
	"github.com/smallbiznis/jukubill/internal/server"
	"github.com/smallbiznis/jukubill/internal/storage"
	"github.com/smallbiznis/jukubill/pkg/db"
	"github.com/smallbiznis/jukubill/pkg/telemetry"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		guardlock.Module,
		storage.Module,
		migration.Module,

		// Billing domains and the HTTP surface
		server.Module,

		fx.Invoke(func(*trace.TracerProvider) {}),
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
