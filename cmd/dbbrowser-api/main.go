package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/dbbrowser/internal/api"
	"github.com/duckmesh/dbbrowser/internal/config"
	"github.com/duckmesh/dbbrowser/internal/gateway"
	"github.com/duckmesh/dbbrowser/internal/observability"
	"github.com/duckmesh/dbbrowser/internal/server"
	"github.com/duckmesh/dbbrowser/internal/storage"
	s3store "github.com/duckmesh/dbbrowser/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("dbbrowser-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		logger.Error("failed to create storage dir", slog.String("dir", cfg.Storage.Dir), slog.Any("error", err))
		os.Exit(1)
	}

	gw, err := gateway.New(gateway.Config{Dir: cfg.Storage.Dir, ReadOnly: cfg.Storage.ReadOnly})
	if err != nil {
		logger.Error("failed to initialize gateway", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:      logger,
		Browser:     gw,
		ObjectStore: objectStore,
		Readiness: api.CombineReadinessChecks(
			api.CheckStorageDir(gw.Dir()),
			api.CheckObjectStoreConfig(cfg),
			api.CheckObjectStore(objectStore),
		),
		DependencyTimeout: time.Second,
	})

	logger.Info("serving databases", slog.String("dir", gw.Dir()), slog.Bool("read_only", cfg.Storage.ReadOnly))
	if err := server.Run(ctx, cfg.HTTP, handler, logger); err != nil {
		logger.Error("api server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
