package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server"
	"github.com/dmitrijs2005/gameauth/internal/server/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		return err
	}

	return app.Run(ctx)
}
