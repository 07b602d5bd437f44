package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/querypilot/querypilot/internal/demo/seeder"
)

func main() {
	cfg, err := seeder.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seeder config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := seeder.Open(cfg)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	service, err := seeder.NewService(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"seeding demo warehouse",
		slog.String("path", cfg.WarehousePath),
		slog.String("start", cfg.StartDate),
		slog.String("end", cfg.EndDate),
		slog.Int("rows_per_day", cfg.RowsPerDay),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("seeder stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seeder finished")
}
