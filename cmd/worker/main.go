package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/agencydesk/internal/database"
	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/storage"
	"github.com/hugh/agencydesk/internal/tasks"
	"github.com/hugh/agencydesk/pkg/config"
	"github.com/hugh/agencydesk/pkg/crypto"
	"github.com/hugh/agencydesk/pkg/queue"
	"github.com/hugh/agencydesk/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel).With("service", "worker")
	slog.SetDefault(logger)

	logger.Info("starting agencydesk worker")

	sweep, err := util.ParseCron(cfg.Invitations.SweepCron)
	if err != nil {
		logger.Error("invalid INVITATION_SWEEP_CRON", "error", err)
		os.Exit(1)
	}
	if gap := sweep.Interval(time.Now()); gap > cfg.Invitations.TTL() {
		// Expired invitations linger for up to one gap.
		logger.Warn("invitation sweep runs less often than invitations expire",
			"interval", gap.String(), "ttl", cfg.Invitations.TTL().String())
	}

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Deletes made here must reach the server's mirrors, so the worker
	// publishes through the same broker.
	var rdb *redis.Client
	if cfg.Realtime.Broker == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
		defer rdb.Close()
	}
	broker, err := realtime.Open(cfg.Realtime.Broker, db, cfg.Database.DSN(), rdb, logger)
	if err != nil {
		logger.Error("failed to open realtime broker", "broker", cfg.Realtime.Broker, "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	objects, err := storage.New(context.Background(), &cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize object storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	repo := repository.New(db, broker, logger)

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key, cfg.Encryption.Retired...)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		// A generated key cannot open anything stored earlier.
		encryptor = nil
		logger.Warn("ENCRYPTION_KEY not set, billing reseal disabled")
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(repo, objects, encryptor, logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic invitation sweep
	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(sweep.Expr, tasks.NewInvitationSweepTask())
	if err != nil {
		logger.Error("failed to register invitation sweep", "error", err)
		os.Exit(1)
	}
	logger.Info("invitation sweep scheduled", "entry_id", entryID, "cron", sweep.Expr, "next_run", sweep.Next(time.Now()))
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Rewrite billing details still sealed under a retired key
	if encryptor != nil && len(cfg.Encryption.Retired) > 0 {
		client := queue.NewClient(&cfg.Redis)
		if _, err := client.Enqueue(tasks.NewBillingResealTask()); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Warn("failed to enqueue billing reseal", "error", err)
		} else {
			logger.Info("billing reseal queued", "retired_keys", len(cfg.Encryption.Retired))
		}
		client.Close()
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
