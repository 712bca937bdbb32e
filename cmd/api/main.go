package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"fanout/internal/api"
	"fanout/internal/logger"
	"fanout/internal/queue"
	"fanout/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logg := logger.New()
	defer logg.Sync() //nolint:errcheck
	logg.Info("Starting API server...")

	dbConfig := repository.MustConfig(repository.LoadConfig())
	dbPool := repository.MustPool(repository.SetupPool(ctx, dbConfig, logg))
	defer dbPool.Close()

	queueConfig := queue.MustConfig(queue.LoadConfig())
	queueSvc := queue.New(&queueConfig)

	cfg := api.MustConfig(api.LoadConfig())
	jobQueueURL, err := queueSvc.GetQueueURL(ctx, cfg.JobQueue)
	if err != nil {
		logg.Fatal("Unable to get job queue url", zap.Error(err))
	}

	h, err := api.NewHandler(&cfg, queueSvc, jobQueueURL, repository.NewJobDB(dbPool), logg)
	if err != nil {
		logg.Fatal("Unable to create API handler", zap.Error(err))
	}
	httpServer := http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		logg.Info("API server starting...", zap.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Unable to start API server", zap.Error(err))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	logg.Info("Stopping API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Fatal("Unable to shut down API server", zap.Error(err))
	}
}
