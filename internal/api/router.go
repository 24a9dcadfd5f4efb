package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/scanara-ai/scanara-backend/internal/api/handlers"
	"github.com/scanara-ai/scanara-backend/internal/api/middleware"
	"github.com/scanara-ai/scanara-backend/internal/apps"
	"github.com/scanara-ai/scanara-backend/internal/audit"
	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/config"
	"github.com/scanara-ai/scanara-backend/internal/docstore"
	"github.com/scanara-ai/scanara-backend/internal/metrics"
	"github.com/scanara-ai/scanara-backend/internal/users"
)

// Deps are the services the API is built from. Redis and Registry may be
// nil.
type Deps struct {
	Store      docstore.Store
	Redis      *redis.Client
	Verifier   auth.Verifier
	Users      *users.Service
	Apps       *apps.Service
	Audits     *audit.Service
	Dispatcher audit.Dispatcher
	Registry   *prometheus.Registry
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		rl:   middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{rt.cfg.Server.ClientURL}))
	r.Use(rt.rl.Limit)
	if rt.deps.Registry != nil {
		r.Use(metrics.NewHTTP(rt.deps.Registry).Middleware)
	}

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.NotFound)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.Store, rt.deps.Redis)
	r.Get("/health", health.Health)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Registry != nil {
		r.Handle("/metrics", metrics.Handler(rt.deps.Registry))
	}

	authn := auth.NewMiddleware(rt.deps.Verifier).Authenticate

	userH := handlers.NewUserHandler(rt.deps.Users)
	r.Route("/api/users", func(r chi.Router) {
		r.Use(authn)
		r.Get("/profile", userH.GetProfile)
		r.Post("/profile", userH.CreateProfile)
		r.Put("/profile", userH.UpdateProfile)
	})

	appH := handlers.NewAppHandler(rt.deps.Apps)
	r.Route("/api/apps", func(r chi.Router) {
		r.Use(authn)
		r.Get("/", appH.List)
		r.Post("/", appH.Create)
		r.Get("/{id}", appH.Get)
		r.Put("/{id}", appH.Update)
		r.Delete("/{id}", appH.Delete)
		r.Get("/{id}/connection", appH.Connection)
	})

	auditH := handlers.NewAuditHandler(rt.deps.Audits, rt.deps.Dispatcher)
	r.Route("/api/audits", func(r chi.Router) {
		r.Use(authn)
		r.Get("/", auditH.List)
		r.Post("/", auditH.Create)
		r.Get("/{id}", auditH.Get)
		r.Put("/{id}", auditH.Update)
	})

	return r
}

// Close releases background resources held by middleware.
func (rt *Router) Close() {
	rt.rl.Stop()
}
