package main

import (
	"context"
	"errors"
	"time"

	"tucano/internal/amqp"
	"tucano/internal/cli"
	"tucano/internal/config"
	"tucano/internal/repository"
	"tucano/internal/services"
	"tucano/internal/sheets"
	gsheet "tucano/internal/sheets/google"
	"tucano/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig()
	logger.Info("Starting recurring-worker")
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend is private to this process, the worker sees no API data")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := cli.OpenBackend(ctx, logger, cfg)
	defer cli.CloseBackend(logger, result)

	repo := repository.New(result.Store, repository.WithLogger(logger))
	projector := services.NewProjector(repo, services.WithProjectorLogger(logger))

	// Initialize Google Sheets client for the ledger mirror (optional)
	var ledger sheets.Ledger
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			SheetPrefix:     cfg.GoogleSheetPrefix,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			return
		}
		ledger = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.NewReconcileWorker(repo, projector, ledger, logger)
	if err := w.Start(ctx, cfg.ReconcileSchedule); err != nil {
		logger.Error("Failed to start reconcile worker", "error", err)
		return
	}

	// Consume change notifications between sweeps (optional)
	if cfg.AMQPEnabled() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on the schedule", "error", err)
		} else {
			amqpClient.WithLogger(logger)
			defer amqpClient.Close()
			go func() {
				if err := amqpClient.ConsumeChanges(ctx, w.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", "error", err)
					cancel()
				}
			}()
			logger.Info("Consuming change notifications", "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - reconciling on schedule only")
	}

	cli.WaitForShutdown(ctx, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down recurring-worker...")
	cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", "error", err)
		return
	}
	logger.Info("Recurring-worker shutdown complete")
}
