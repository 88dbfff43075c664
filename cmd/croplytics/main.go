package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/migration"
	"github.com/croplytics/croplytics/internal/observability"
	"github.com/croplytics/croplytics/internal/scheduler"
	"github.com/croplytics/croplytics/internal/server"
	"github.com/croplytics/croplytics/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
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
