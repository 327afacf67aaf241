package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stixly/stickerbot/core/config"
	"github.com/stixly/stickerbot/core/logger"
	"github.com/stixly/stickerbot/internal/app"
)

const defaultConfigPath = "config.yml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("stickerbot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	startedAt := time.Now()
	logger.App.Info("starting",
		slog.String("event", "app.start"),
		slog.String("config", cfgPath),
		slog.String("run_mode", cfg.Telegram.RunMode),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application := app.Build(cfg)
	err = application.Run(ctx)

	logger.App.Info("stopped",
		slog.String("event", "app.stopped"),
		slog.Duration("uptime", logger.Took(startedAt)),
	)
	return err
}
