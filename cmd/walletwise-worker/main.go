package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"walletwise/internal/amqp"
	"walletwise/internal/cli"
	applog "walletwise/internal/log"
	"walletwise/internal/metrics"
	"walletwise/internal/sheets"
	"walletwise/internal/sheets/google"
	sheetsmem "walletwise/internal/sheets/memory"
	"walletwise/internal/storage"
	"walletwise/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting walletwise-worker")

	repo, err := storage.NewSQLiteRepository(cfg.ActivityDBPath, logger)
	if err != nil {
		logger.Error("Failed to open activity log", applog.FieldError, err, "path", cfg.ActivityDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var mirror sheets.Mirror
	if cfg.MirrorEnabled() {
		client, err := google.New(context.Background(), google.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = sheetsmem.New()
		logger.Info("Google Sheets disabled, mirroring to memory")
	}

	syncWorker := worker.NewSyncWorker(repo, mirror, metrics.New(), cfg.SyncBatchSize, logger)

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer consumer.Close()
	} else {
		logger.Info("AMQP disabled, relying on the periodic sweep")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeActivities(gctx, syncWorker.HandleSyncMessage)
		})
	}
	g.Go(func() error {
		return syncWorker.RunSweep(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", applog.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
