package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/config"
	"presence/internal/logging"
	"presence/internal/platform"
	"presence/internal/statscache"
	"presence/internal/store"
)

// Worker consumes attendance events and refreshes the stats snapshots.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fb *firebase.App
	if cfg.StoreBackend == config.StoreFirestore {
		app, err := platform.OpenFirebase(ctx, cfg)
		if err != nil {
			return err
		}
		fb = app
	}
	backend, _, err := platform.OpenStore(ctx, cfg, fb, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	if !rdb.Healthy(ctx) {
		logger.Warn("redis not reachable; snapshots will fail until it is", zap.String("addr", cfg.RedisAddr))
	}
	if cfg.QueueBackend != "redis" {
		logger.Warn("QUEUE_BACKEND is not redis; the worker will not see events published by the api")
	}

	r := &statscache.Refresher{
		Stats: attendance.NewService(attendance.Clients{Store: backend, Logger: logger}),
		Cache: statscache.New(rdb.Client, cfg.StatsSnapshotTTL),
		Log:   logger.Named("refresher"),
	}
	lc, err := platform.OpenLedger(cfg, logger)
	if err != nil {
		return err
	}
	if lc != nil {
		r.Ledger = lc
	}

	logger.Info("worker started, waiting for events")
	err = r.Run(ctx, platform.OpenQueue(cfg, rdb, logger))
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("worker stopped")
	return err
}
