package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/docbill/internal/logger"
	"github.com/smallbiznis/docbill/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		logger.Module,
		fx.Provide(RegisterSnowflake),
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
