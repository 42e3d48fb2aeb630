package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pairledger/internal/amqp"
	"pairledger/internal/auth"
	"pairledger/internal/config"
	apphttp "pairledger/internal/http"
	"pairledger/internal/ledger"
	applog "pairledger/internal/log"
	"pairledger/internal/recon"
	"pairledger/internal/registry"
	"pairledger/internal/storage"
)

// noopPublisher is used when AMQP is disabled; the worker's sweep then
// carries all reconciliation.
type noopPublisher struct{}

func (noopPublisher) PublishExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	slog.DebugContext(ctx, "AMQP disabled, dropping expense created event",
		"couple_id", msg.CoupleID, "expense_id", msg.ExpenseID)
	return nil
}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	applog.Setup()
	logger := applog.WithComponent("server")

	logger.Info("Starting pairledger server")

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

	var publisher ledger.Publisher = noopPublisher{}
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTokenTTL)

	srv := apphttp.NewServer(":"+cfg.Port,
		repo,
		registry.NewService(repo, applog.WithComponent("registry")),
		ledger.NewService(repo, publisher, applog.WithComponent("ledger")),
		recon.NewService(repo, applog.WithComponent("recon")),
		jwtMgr)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting HTTP server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
