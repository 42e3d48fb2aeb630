package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pairledger/internal/amqp"
	"pairledger/internal/config"
	applog "pairledger/internal/log"
	"pairledger/internal/push"
	"pairledger/internal/recon"
	"pairledger/internal/storage"
	"pairledger/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	applog.Setup()
	logger := applog.WithComponent("worker")

	logger.Info("Starting pairledger-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Push delivery is optional: without an FCM project the worker still
	// reconciles balances.
	var sender push.Sender
	if cfg.FCMProjectID != "" {
		fcmSender, err := push.NewFCMSender(ctx, cfg.FCMProjectID, cfg.PushConcurrency, applog.WithComponent("push"))
		if err != nil {
			logger.Error("Failed to initialize FCM sender", "error", err)
			os.Exit(1)
		}
		sender = fcmSender
		logger.Info("FCM sender initialized", "project_id", cfg.FCMProjectID)
	} else {
		sender = push.NewNoopSender(applog.WithComponent("push"))
		logger.Info("Push disabled - no FCM_PROJECT_ID provided")
	}

	reconSvc := recon.NewService(repo, applog.WithComponent("recon"))
	reactionWorker := worker.NewReactionWorker(repo, reconSvc, sender, cfg.SweepBatchSize)
	reactionWorker.StartTokenJanitor(ctx)

	// On startup, heal any couples whose events were missed while down.
	if err := reactionWorker.SweepOnce(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		logger.Error("Startup sweep failed", "error", err)
		// Don't exit - continue with normal operation
	}

	go func() {
		if err := amqpClient.ConsumeExpenseCreated(ctx, reactionWorker.HandleExpenseCreated); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	go reactionWorker.RunSweep(ctx, cfg.SweepInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give in-flight handlers a moment to finish.
	time.Sleep(5 * time.Second)
	logger.Info("Worker shutdown complete")
}
