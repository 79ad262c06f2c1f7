package main

import (
	"context"
	"log/slog"

	"reqflow/internal/config"
	"reqflow/internal/daemon"
)

func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	components, err := daemon.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	d, err := daemon.New(cfg, components, logger)
	if err != nil {
		_ = components.Close()
		return nil, err
	}
	return d, nil
}
