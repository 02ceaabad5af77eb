package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/database"
	"github.com/recall-archive/recall/queue"
	"github.com/recall-archive/recall/services"
	"github.com/recall-archive/recall/store"
	"github.com/recall-archive/recall/worker"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	mediaStore := store.NewGormStore(db, cfg.Worker.MaxAttempts)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gemini, err := services.NewGeminiClient(ctx, cfg.Gemini)
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini client initialization failed")
	}
	tagging := services.NewTaggingService(gemini, logger)

	tasks, err := queue.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer tasks.Close()

	enrichment := worker.NewEnrichmentWorker(mediaStore, tagging, cfg.Worker, logger)
	consumer := worker.NewTaskConsumer(tasks, mediaStore, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		enrichment.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	logger.Info().Msg("worker shut down")
}
