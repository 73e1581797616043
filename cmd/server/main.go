package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/agencydesk/internal/api"
	"github.com/hugh/agencydesk/internal/api/handlers"
	"github.com/hugh/agencydesk/internal/api/middleware"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/database"
	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/session"
	"github.com/hugh/agencydesk/internal/storage"
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
	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel).With("service", "server")
	slog.SetDefault(logger)

	logger.Info("starting agencydesk server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.IsDevelopment() {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Initialize Asynq client for background job enqueuing
	var asynqClient *asynq.Client
	var enqueuer handlers.TaskEnqueuer
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		enqueuer = asynqClient
	}

	// Realtime change feed
	broker, err := realtime.Open(cfg.Realtime.Broker, db, cfg.Database.DSN(), redisClient, logger)
	if err != nil {
		logger.Error("failed to open realtime broker", "broker", cfg.Realtime.Broker, "error", err)
		os.Exit(1)
	}

	var identities realtime.Persister = realtime.NewMemoryPersister()
	if redisClient != nil {
		identities = realtime.NewRedisPersister(redisClient, 30*24*time.Hour)
	}

	loader := realtime.NewTableLoader(cfg.Realtime.HydrationLimits)
	repository.RegisterTables(loader, db)
	hub := realtime.NewHub(broker, loader, logger)

	// Object storage
	objects, err := storage.New(context.Background(), &cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize object storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	logger.Info("object storage ready", "backend", objects.Name())

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)
	provider := auth.NewProvider(&cfg.OAuth, cfg.Server.BaseURL+"/api/v1/auth/callback")
	secure := !cfg.Server.IsDevelopment()
	stateStore := auth.NewStateStore(cfg.OAuth.StateHashKey, cfg.OAuth.StateBlockKey, secure)
	repo := repository.New(db, broker, logger)

	// Initialize encryptor for billing metadata
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key, cfg.Encryption.Retired...)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - billing details will be lost on restart")
	}

	if cfg.Server.CSRFKey == "" {
		logger.Warn("SERVER_CSRF_KEY not set, using generated key - CSRF tokens will not survive a restart")
	}
	csrf := middleware.NewCSRF(cfg.Server.CSRFKey, secure)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window())

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:       db,
		Redis:    redisClient,
		Logger:   logger,
		Tokens:   jwtService,
		Resolver: session.NewResolver(db),
		Repo:     repo,
		Auth: handlers.AuthHandlerConfig{
			Provider:      provider,
			State:         stateStore,
			Authenticator: authService,
			Identities:    identities,
			TokenTTL:      cfg.JWT.Expiry(),
			SecureCookie:  secure,
			Logger:        logger,
		},
		Encryptor:       encryptor,
		Queue:           enqueuer,
		Objects:         objects,
		Hub:             hub,
		Identities:      identities,
		Backoff:         realtime.Backoff{Initial: cfg.Realtime.BackoffInitial, Max: cfg.Realtime.BackoffMax},
		BrokerName:      cfg.Realtime.Broker,
		InvitationTTL:   cfg.Invitations.TTL(),
		BaseURL:         cfg.Server.BaseURL,
		CSRF:            csrf,
		RateLimiter:     limiter,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		WebsocketOrigin: originHosts(cfg.CORS.AllowedOrigins),
	})

	// Create HTTP server. No WriteTimeout: realtime websockets are long-lived
	// and bound their own writes.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	hub.Close()
	if err := broker.Close(); err != nil {
		logger.Warn("closing realtime broker", "error", err)
	}
	limiter.Close()

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}

// originHosts turns CORS origins into the host patterns the websocket
// handshake matches against.
func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
