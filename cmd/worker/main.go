package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	"github.com/cassiomorais/cardgateway/internal/bootstrap"
	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	infraRedis "github.com/cassiomorais/cardgateway/internal/infrastructure/redis"
	"github.com/cassiomorais/cardgateway/internal/repository/postgres"
	"github.com/cassiomorais/cardgateway/pkg/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "cardgateway-worker", "cardgateway_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)

	// --- Gateway client ---
	gwCfg := app.Config.Gateway
	apiClient := gateway.NewClient(gateway.Config{
		BaseURL:    gwCfg.BaseURL,
		MerchantID: gwCfg.MerchantID,
		Password:   gwCfg.Password,
		Timeout:    gwCfg.Timeout,
		Retry: retry.Config{
			MaxAttempts:  gwCfg.RetryAttempts,
			InitialDelay: gwCfg.RetryInitDelay,
			MaxDelay:     gwCfg.RetryMaxDelay,
		},
	}, app.Logger, app.Metrics)

	// --- Orchestrator ---
	chkCfg := app.Config.Checkout
	orchestrator := checkout.NewOrchestrator(orderRepo, apiClient, checkout.Config{
		CaptureImmediate:  chkCfg.CaptureImmediate,
		StepUpEnabled:     chkCfg.StepUpEnabled,
		StepUpResponseURL: chkCfg.ReturnURL,
		StepUpTTL:         chkCfg.StepUpTTL,
		HostedReturnURL:   chkCfg.ReturnURL,
	}, app.Logger, app.Metrics)

	locks := infraRedis.NewLockManager(app.Redis, gwCfg.OrderLockTTL)

	workerCfg := app.Config.Worker
	app.Logger.Info().
		Dur("sweep_interval", workerCfg.SweepInterval).
		Dur("stale_after", workerCfg.StaleAfter).
		Int("batch_size", workerCfg.BatchSize).
		Msg("Worker started, sweeping stale orders...")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Reconciliation sweeper (resolves orders stuck in processing).
	g.Go(func() error {
		return runReconcileSweeper(gCtx, app.Logger, orderRepo, orchestrator, locks, workerCfg.SweepInterval, workerCfg.StaleAfter, workerCfg.BatchSize)
	})

	// 2. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runReconcileSweeper(
	ctx context.Context,
	logger zerolog.Logger,
	orderRepo *postgres.OrderRepository,
	orchestrator *checkout.Orchestrator,
	locks *infraRedis.LockManager,
	sweepInterval, staleAfter time.Duration,
	batchSize int,
) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-staleAfter)
		stale, err := orderRepo.ListStaleProcessing(ctx, cutoff, batchSize)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list stale orders")
			continue
		}
		if len(stale) == 0 {
			continue
		}

		logger.Info().Int("count", len(stale)).Msg("Sweeping stale orders")

		for _, o := range stale {
			orderID := o.ID
			err := locks.WithOrderLock(ctx, orderID, func() error {
				return orchestrator.ReconcileOrder(ctx, orderID)
			})
			switch {
			case err == nil:
			case errors.Is(err, domainErrors.ErrLockAcquisitionFailed):
				logger.Warn().Str("order_id", orderID).Msg("Order locked elsewhere, skipping")
			default:
				logger.Error().Err(err).Str("order_id", orderID).Msg("Failed to reconcile order")
			}
		}
	}
}
