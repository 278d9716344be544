package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	prioritiesrepo "salesdesk_backend/internal/priorities/repository"
	prioritiesservice "salesdesk_backend/internal/priorities/service"
	recordsrepo "salesdesk_backend/internal/records/repository"
	"salesdesk_backend/internal/scheduler"
	scoringrepo "salesdesk_backend/internal/scoring/repository"
	scoringservice "salesdesk_backend/internal/scoring/service"
	"salesdesk_backend/platform/config"
	"salesdesk_backend/platform/db"
	"salesdesk_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.AsynqQueueName)

	if cfg.RedisURL == "" {
		panic("REDIS_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer client.Close()

	records := recordsrepo.New(pool)
	priorities := prioritiesservice.New(prioritiesrepo.New(pool), log)
	scoringService := scoringservice.New(
		scoringrepo.New(pool),
		records,
		priorities,
		client,
		cfg.GetRescorePageSize(),
		log,
	)

	worker, err := scheduler.NewWorker(cfg, scoringService, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	log.Info("worker listening", "concurrency", cfg.AsynqConcurrency)
	worker.Run(ctx)
	log.Info("worker stopped")
}
