package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tucano/internal/amqp"
	"tucano/internal/cli"
	apphttp "tucano/internal/http"
	"tucano/internal/middleware/auth"
	"tucano/internal/repository"
	"tucano/internal/services"
	"tucano/internal/state"
)

// notifierBuffer is how many change messages may wait for the broker.
const notifierBuffer = 1024

func main() {
	cfg, logger := cli.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := cli.OpenBackend(ctx, logger, cfg)
	defer cli.CloseBackend(logger, result)
	store := result.Store

	// Publish committed writes so the worker can reconcile and mirror users
	// between its scheduled sweeps.
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, changes will not be published", "error", err)
		} else {
			client.WithLogger(logger)
			defer client.Close()
			notifier := amqp.NewNotifier(client, notifierBuffer, logger)
			defer notifier.Close()
			store.OnChange(notifier.Hook())
			logger.Info("AMQP change notifications enabled", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled, the worker relies on its schedule")
	}

	repo := repository.New(store, repository.WithLogger(logger))
	projector := services.NewProjector(repo, services.WithProjectorLogger(logger))
	states := state.NewManager(store, projector, state.Config{
		Size: cfg.StateCacheSize,
		TTL:  cfg.StateCacheTTL,
	}, logger)
	defer states.Close()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Repo:         repo,
		Transactions: services.NewTransactionService(repo, projector).WithLogger(logger),
		Credit:       services.NewCreditScheduler(repo).WithLogger(logger),
		State:        states,
		Auth:         auth.New(cfg.AuthJWTSecret, cfg.AuthTokenTTL, auth.WithLogger(logger)),
		Health:       store,
		IssueTokens:  cfg.AuthDevTokens,
		RateLimit:    cfg.RateLimitPerMinute,
		Logger:       logger,
	})

	authMode := "headers"
	if cfg.AuthJWTSecret != "" {
		authMode = "bearer"
	}
	logger.Info("Starting tucano server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth", authMode,
		"dev_tokens", cfg.AuthDevTokens)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			cancel()
		}
	}()

	cli.WaitForShutdown(ctx, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Server stopped gracefully")
}
