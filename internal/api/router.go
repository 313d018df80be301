package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/medpocket/internal/api/handlers"
	"github.com/hugh/medpocket/internal/api/middleware"
	"github.com/hugh/medpocket/internal/auth"
	"github.com/hugh/medpocket/internal/cards"
	"github.com/hugh/medpocket/internal/generation"
	"github.com/hugh/medpocket/internal/llm"
	"github.com/hugh/medpocket/internal/observability"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
	limiters []*middleware.RateLimiter
}

type RouterConfig struct {
	DB          *gorm.DB
	Redis       *redis.Client // optional
	Logger      *slog.Logger
	JWTService  auth.TokenService
	AuthService auth.Authenticator
	Cards       *cards.Service
	Notes       *cards.NoteService
	LLM         llm.ChatCompleter
	Generation  generation.Config
	Prom        *observability.Prom // optional; nil disables /metrics
	Queue       handlers.Enqueuer   // optional; nil disables generation jobs

	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	AIRateLimit    int      // AI requests per user per window
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	router := &Router{Router: r}

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Prom != nil {
		r.Use(cfg.Prom.Middleware)
	}

	if cfg.RateLimitReqs > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs)
		router.limiters = append(router.limiters, limiter)
		r.Use(limiter.ByIP())
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8081"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	var recorder generation.Recorder
	if cfg.Prom != nil {
		recorder = cfg.Prom
	}

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Logger)
	cardHandler := handlers.NewCardHandler(cfg.Cards, cfg.Notes, cfg.Logger)
	referenceHandler := handlers.NewReferenceHandler(cfg.DB, cfg.Logger)
	aiHandler := handlers.NewAIHandler(handlers.AIHandlerConfig{
		Client:     cfg.LLM,
		Generation: cfg.Generation,
		Recorder:   recorder,
		DB:         cfg.DB,
		Cards:      cfg.Cards,
		Queue:      cfg.Queue,
		Logger:     cfg.Logger,
	})

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Prom != nil {
		r.Handle("/metrics", cfg.Prom.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/public-cards", cardHandler.ListPublic)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/auth/me", authHandler.Me)
			r.Post("/public-cards/make-public/{id}", cardHandler.MakePublic)

			r.Route("/medical-cards", func(r chi.Router) {
				r.Get("/", cardHandler.List)
				r.Post("/", cardHandler.Create)
				r.Put("/{id}", cardHandler.Update)
				r.Delete("/{id}", cardHandler.Delete)
				r.Get("/{id}/note", cardHandler.GetNote)
				r.Put("/{id}/note", cardHandler.PutNote)
			})

			r.Get("/templates", referenceHandler.ListTemplates)
			r.Post("/templates", referenceHandler.CreateTemplate)
			r.Get("/entries", referenceHandler.ListEntries)
			r.Post("/entries", referenceHandler.CreateEntry)
			r.Get("/categories", referenceHandler.ListCategories)
			r.Get("/links", referenceHandler.ListLinks)

			r.Route("/ai", func(r chi.Router) {
				if cfg.AIRateLimit > 0 {
					limiter := middleware.NewRateLimiter(cfg.AIRateLimit, cfg.RateLimitSecs)
					router.limiters = append(router.limiters, limiter)
					r.Use(limiter.ByUser())
				}
				r.Post("/chat", aiHandler.Chat)
				r.Post("/generate", aiHandler.Generate)
				r.Post("/generate/jobs", aiHandler.CreateJob)
				r.Get("/generate/jobs/{id}", aiHandler.GetJob)
				r.Post("/generate/jobs/{id}/save", aiHandler.SaveJob)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}` + "\n"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"Method not allowed"}` + "\n"))
	})

	return router
}

// Close stops the rate limiter sweepers.
func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}
