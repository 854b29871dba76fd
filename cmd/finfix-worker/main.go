package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finfix/internal/amqp"
	"finfix/internal/backend"
	"finfix/internal/cli"
	"finfix/internal/log"
	"finfix/internal/services"
	"finfix/internal/sheets"
	gsheet "finfix/internal/sheets/google"
	memsheet "finfix/internal/sheets/memory"
	"finfix/internal/storage"
	"finfix/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger("info", "text")
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentWorker)

	logger.Info("Starting finfix-worker", log.FieldOperation, log.OpStartup)
	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer result.Close()

	// The export queue shares the backend database when it is SQLite
	queue := result.Repository
	if queue == nil {
		queue = cli.InitSQLite(logger, cfg.SQLiteDBPath)
		defer queue.Close()
	}

	var exporter sheets.ProfileExporter
	if cfg.SheetsExportEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = memsheet.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
	}

	exportWorker := worker.NewExportWorker(queue, result.Backend, result.Backend, exporter, logger)

	procCfg := services.DefaultExportProcessorConfig()
	procCfg.RetryInterval = cfg.ExportRetryInterval
	processor := services.NewExportProcessor(queue, exportWorker, procCfg)

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Export processor did not stop cleanly", log.FieldError, err)
		}
	})

	if err := processor.Start(runCtx); err != nil {
		logger.Error("Failed to start export processor", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeOnboardingCompleted(runCtx, exportWorker.HandleCompletedMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - only locally queued exports will run")
	}

	cli.WaitForShutdown(runCtx, done)
	if stats, err := queue.ExportQueueStats(context.Background()); err == nil {
		logger.Info("Worker stopped", "export_queue", stats)
	}
}

var _ services.ExportStore = (*storage.SQLiteRepository)(nil)
