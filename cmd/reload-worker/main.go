package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	reloadworker "github.com/magabrotheeeer/credit-engine/internal/app/reload-worker"
	"github.com/magabrotheeeer/credit-engine/internal/config"
	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting reload worker", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := reloadworker.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize reload worker", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("reload worker stopped with error", sl.Err(err))
		os.Exit(1)
	}
}
