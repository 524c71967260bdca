package main

import (
	"github.com/OFFIS-RIT/kiwi-live/internal/config"
	"github.com/OFFIS-RIT/kiwi-live/internal/server"
	"github.com/OFFIS-RIT/kiwi-live/internal/util"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-live/pkg/logger/console"
)

func main() {
	cfg, err := config.Load()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	server.Init(cfg)
}
