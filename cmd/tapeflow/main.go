package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tapeflow/internal/app"
	"tapeflow/internal/config"
	"tapeflow/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Setup(cfg.App.LogLevel, cfg.App.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	// Hot reload covers the log level only; everything else requires a
	// restart so a running session never changes risk limits mid-flight.
	stopWatch, err := config.Watch(*configPath, func(next *config.Config) {
		logger.SetLevel(next.App.LogLevel)
	})
	if err != nil {
		logger.Warnf("config watch disabled: %v", err)
	} else {
		defer func() { _ = stopWatch() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(cfg)
	if err != nil {
		logger.Errorf("build app: %v", err)
		os.Exit(1)
	}
	if err := application.Run(ctx); err != nil {
		logger.Errorf("run: %v", err)
		os.Exit(1)
	}
}
