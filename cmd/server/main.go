package main

import (
	"github.com/zaldivarmena/mindy/internal/server"
	"github.com/zaldivarmena/mindy/internal/util"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
