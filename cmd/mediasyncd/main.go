package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"mediasync/internal/config"
	"mediasync/internal/daemon"
	"mediasync/internal/downloader"
	"mediasync/internal/filtering"
	"mediasync/internal/logging"
	"mediasync/internal/notifications"
	"mediasync/internal/reconcile"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
	"mediasync/internal/workers"
	"mediasync/internal/ytclient"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	entities, err := store.Open(cfg)
	if err != nil {
		logger.Error("open entity store", logging.Error(err))
		return
	}
	registry, err := tasks.Open(cfg)
	if err != nil {
		_ = entities.Close()
		logger.Error("open task registry", logging.Error(err))
		return
	}

	fs := afero.NewOsFs()
	notifier := notifications.NewService(cfg)

	reconciler := reconcile.New(cfg, entities, registry, filtering.NewEngine(logger), fs, logger)
	reconciler.Attach()

	executors := workers.NewExecutorSet(cfg, entities, ytclient.New(cfg), downloader.New(cfg, fs, logger), notifier, fs, logger)
	dispatcher := workers.NewDispatcher(cfg, registry, executors.Executors(), reconciler, notifier, logger)

	d, err := daemon.New(cfg, entities, registry, dispatcher, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("mediasyncd shutting down")
}
