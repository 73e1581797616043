package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/agencydesk/internal/ability"
	"github.com/hugh/agencydesk/internal/api/handlers"
	"github.com/hugh/agencydesk/internal/api/middleware"
	"github.com/hugh/agencydesk/internal/auth"
	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/hugh/agencydesk/internal/repository"
	"github.com/hugh/agencydesk/internal/storage"
	"github.com/hugh/agencydesk/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Logger   *slog.Logger
	Tokens   auth.TokenService
	Resolver middleware.SessionResolver
	Repo     *repository.Repository
	Auth     handlers.AuthHandlerConfig

	Encryptor *crypto.Encryptor
	Queue     handlers.TaskEnqueuer // nil disables media purge on client delete
	Objects   storage.ObjectStore

	Hub             *realtime.Hub
	Identities      realtime.Persister
	MirroredTables  []string
	Backoff         realtime.Backoff
	BrokerName      string
	InvitationTTL   time.Duration
	BaseURL         string
	CSRF            *middleware.CSRF        // nil disables CSRF checks
	RateLimiter     *middleware.RateLimiter // nil disables rate limiting
	AllowedOrigins  []string                // CORS allowed origins
	WebsocketOrigin []string                // websocket origin patterns
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", middleware.OrgHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.CSRF != nil {
		r.Use(cfg.CSRF.Middleware)
	}

	// Anonymous endpoints count per address, signed-in traffic per user.
	limitByIP := passthrough
	limitByUser := passthrough
	if cfg.RateLimiter != nil {
		limitByIP = cfg.RateLimiter.Middleware(middleware.ByIP)
		limitByUser = cfg.RateLimiter.Middleware(middleware.ByUser)
	}

	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	tables := cfg.MirroredTables
	if tables == nil {
		tables = repository.MirroredTables
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.BrokerName)
	authHandler := handlers.NewAuthHandler(cfg.Auth)
	sessionHandler := handlers.NewSessionHandler(cfg.Repo, cfg.Logger)
	clientHandler := handlers.NewClientHandler(cfg.Repo, cfg.Encryptor, cfg.Queue, cfg.Logger)
	taskHandler := handlers.NewTaskHandler(cfg.Repo, cfg.Logger)
	calendarHandler := handlers.NewCalendarHandler(cfg.Repo, cfg.Logger)
	mediaHandler := handlers.NewMediaHandler(cfg.Repo, cfg.Objects, cfg.Logger)
	memberHandler := handlers.NewMemberHandler(cfg.Repo, cfg.Logger)
	invitationHandler := handlers.NewInvitationHandler(cfg.Repo, cfg.InvitationTTL, cfg.BaseURL, cfg.Logger)
	realtimeHandler := handlers.NewRealtimeHandler(handlers.RealtimeHandlerConfig{
		Hub:            cfg.Hub,
		Identities:     cfg.Identities,
		Tables:         tables,
		Backoff:        cfg.Backoff,
		OriginPatterns: cfg.WebsocketOrigin,
		Logger:         cfg.Logger,
	})

	client := middleware.RequireRole(ability.RoleClient)
	staff := middleware.RequireRole(ability.RoleStaff)
	owner := middleware.RequireRole(ability.RoleOwner)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Group(func(r chi.Router) {
			r.Use(limitByIP)
			r.Get("/auth/signin", authHandler.SignIn)
			r.Get("/auth/callback", authHandler.Callback)
			r.With(middleware.OptionalAuth(cfg.Tokens)).Post("/auth/signout", authHandler.SignOut)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens))
			r.Use(limitByUser)
			r.Use(middleware.Session(cfg.Resolver, cfg.Logger))

			r.With(middleware.RequireAuthenticated).Get("/session", sessionHandler.Get)
			r.With(middleware.RequireAuthenticated).Post("/organizations", sessionHandler.CreateOrganization)
			r.With(middleware.RequireAuthenticated).Post("/invitations/{token}/accept", invitationHandler.Accept)

			r.Route("/clients", func(r chi.Router) {
				r.With(client).Get("/", clientHandler.List)
				r.With(staff).Post("/", clientHandler.Create)
				r.With(client).Get("/{id}", clientHandler.Get)
				r.With(staff).Patch("/{id}", clientHandler.Update)
				r.With(staff).Delete("/{id}", clientHandler.Delete)

				r.With(client).Get("/{id}/tasks", taskHandler.List)
				r.With(staff).Post("/{id}/tasks", taskHandler.Create)

				r.With(client).Get("/{id}/media", mediaHandler.List)
				r.With(client).Post("/{id}/media", mediaHandler.Upload)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Use(staff)
				r.Patch("/{id}", taskHandler.Update)
				r.Delete("/{id}", taskHandler.Delete)
			})

			r.Route("/calendar", func(r chi.Router) {
				r.With(client).Get("/", calendarHandler.List)
				r.With(staff).Post("/", calendarHandler.Create)
				r.With(staff).Patch("/{id}", calendarHandler.Update)
				r.With(staff).Delete("/{id}", calendarHandler.Delete)
			})

			r.With(staff).Delete("/media/{id}", mediaHandler.Delete)

			r.Route("/members", func(r chi.Router) {
				r.With(staff).Get("/", memberHandler.List)
				r.With(owner).Patch("/{id}", memberHandler.Update)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.With(staff).Get("/", invitationHandler.List)
				r.With(staff).Post("/", invitationHandler.Create)
				r.With(owner).Delete("/{id}", invitationHandler.Delete)
			})

			r.Route("/realtime", func(r chi.Router) {
				r.Use(client)
				r.Get("/snapshot", realtimeHandler.Snapshot)
				r.Get("/ws", realtimeHandler.Stream)
			})
		})
	})

	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/auth/signin", http.StatusFound)
	})

	return &Router{r}
}

func passthrough(next http.Handler) http.Handler { return next }
