package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"fanout/internal/logger"
	"fanout/internal/queue"
	"fanout/internal/repository"
	"fanout/internal/worker"
	"fanout/pkg/batch"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logg := logger.New()
	defer logg.Sync() //nolint:errcheck
	logg.Info("Starting worker...")

	dbConfig := repository.MustConfig(repository.LoadConfig())
	dbPool := repository.MustPool(repository.SetupPool(ctx, dbConfig, logg))
	defer dbPool.Close()

	queueConfig := queue.MustConfig(queue.LoadConfig())
	queueSvc := queue.New(&queueConfig)

	cfg := worker.MustConfig(worker.LoadConfig())
	jobQueueURL, err := queueSvc.GetQueueURL(ctx, cfg.JobQueue)
	if err != nil {
		logg.Fatal("Unable to get job queue url", zap.Error(err))
	}

	batchConfig := batch.MustConfig(batch.LoadConfig())
	runner, err := batch.NewRunner(logg, batchConfig.Options()...)
	if err != nil {
		logg.Fatal("Unable to create batch runner", zap.Error(err))
	}
	processor, err := worker.New(repository.NewJobDB(dbPool), runner, logg)
	if err != nil {
		logg.Fatal("Unable to create processor", zap.Error(err))
	}
	instance, err := worker.NewWorker(jobQueueURL, cfg.Workers, queueSvc, processor, logg)
	if err != nil {
		logg.Fatal("Unable to create worker", zap.Error(err))
	}

	logg.Info("Waiting for messages")
	done := make(chan struct{})
	go func() {
		defer close(done)
		instance.WatchMessages(ctx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	logg.Info("Stopping worker...")
	cancel()
	<-done
}
