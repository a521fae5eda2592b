package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/matchsync/internal/api"
	"github.com/mcoot/matchsync/internal/config"
	"github.com/mcoot/matchsync/internal/factory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	app, err := factory.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}()

	serverConfig := api.DefaultServerConfig()
	serverConfig.Addr = cfg.Addr
	server := api.NewServer(app.Router(), serverConfig, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	for _, task := range app.Background(cfg.HubCleanupInterval, cfg.SessionCleanupInterval) {
		g.Go(func() error { return task(ctx) })
	}

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage),
		slog.Bool("redis_feed", cfg.RedisFeed))

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
