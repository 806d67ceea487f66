package main

import (
	"fmt"
	"os"

	"github.com/thesyncim/mediagrid/config"
	"github.com/thesyncim/mediagrid/internal/cli"
	"github.com/thesyncim/mediagrid/internal/logger"
	"github.com/thesyncim/mediagrid/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("MEDIAGRID_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{
		Config:  cfg,
		Logger:  logger.New(cfg.LogLevel, cfg.LogFormat),
		Metrics: metrics.New(),
	}

	return cli.NewRootCmd(deps).Execute()
}
