package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"textbook-rag/apps/backend/internal/app"
	"textbook-rag/apps/backend/internal/config"
	"textbook-rag/apps/backend/internal/logger"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, deps.Providers, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.EnableIndexWorker {
		consumer, err := a.StartIndexWorker()
		if err != nil {
			slog.Error("failed to start index worker", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	return a.Run(ctx)
}
