package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	"github.com/cassiomorais/cardgateway/internal/bootstrap"
	"github.com/cassiomorais/cardgateway/internal/controller"
	"github.com/cassiomorais/cardgateway/internal/gateway"
	infraRedis "github.com/cassiomorais/cardgateway/internal/infrastructure/redis"
	"github.com/cassiomorais/cardgateway/internal/repository/postgres"
	"github.com/cassiomorais/cardgateway/pkg/retry"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "cardgateway-api", "cardgateway")
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

	// --- Concurrency guards ---
	locks := infraRedis.NewLockManager(app.Redis, gwCfg.OrderLockTTL)
	dedup := infraRedis.NewNotificationDedup(app.Redis, gwCfg.NotificationTTL)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		OrderRepo:   orderRepo,
		Port:        orchestrator,
		Locks:       locks,
		Dedup:       dedup,
		Metrics:     app.Metrics,
		Logger:      app.Logger,
		Checkout:    chkCfg,
		CORSConfig:  app.Config.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
