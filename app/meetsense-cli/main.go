package main

import (
	"fmt"
	"os"

	"github.com/yoockh/meetsense/config"
	"github.com/yoockh/meetsense/internal/cli"
	"github.com/yoockh/meetsense/internal/logger"
)

func main() {
	if err := run(); err != nil {
		cli.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{
		Config: &cfg,
		Logger: logger.NewWith(os.Stderr, os.Getenv("LOG_LEVEL"), "text"),
	}
	return cli.NewRootCmd(deps).Execute()
}
