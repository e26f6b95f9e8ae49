// Package rest assembles the HTTP API.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"lens-backend/internal/interfaces/http/rest/handlers"
	"lens-backend/internal/interfaces/http/rest/middleware"
	"lens-backend/internal/observability"
	apperrors "lens-backend/pkg/errors"
)

// Deps are the services behind the routes. Metrics and Stream may be nil.
type Deps struct {
	Sessions  handlers.Sessions
	Feed      handlers.FeedReader
	Ready     handlers.Readiness
	Locations handlers.LocationLister
	Composer  handlers.Composer
	Profiles  handlers.Profiles
	Limits    handlers.UploadLimits
	Stream    http.Handler
	Metrics   *observability.Collector
}

// Options tune cross-cutting behavior.
type Options struct {
	AllowedOrigins []string
	MetricsPath    string
	IPLimit        middleware.Limit
	UserLimit      middleware.Limit
}

// Router creates and configures the HTTP router
type Router struct {
	deps         Deps
	opts         Options
	logger       *zap.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewRouter creates a new router instance
func NewRouter(deps Deps, opts Options, logger *zap.Logger, errorHandler *apperrors.ErrorHandler) *Router {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Router{deps: deps, opts: opts, logger: logger, errorHandler: errorHandler}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.deps.Metrics != nil {
		router.Use(middleware.Metrics(rt.deps.Metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(rt.deps.Ready, rt.logger, rt.errorHandler)
	router.Get("/health", health.Health)
	router.Get("/ready", health.Ready)
	if rt.deps.Metrics != nil {
		router.Handle(rt.opts.MetricsPath, rt.deps.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rt.opts.IPLimit, rt.errorHandler))
		requireUser := middleware.Authenticate(rt.deps.Sessions, rt.opts.UserLimit, rt.errorHandler)

		authHandler := handlers.NewAuthHandler(rt.deps.Sessions, rt.logger, rt.errorHandler)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", authHandler.SignIn)
			r.Post("/signup", authHandler.SignUp)
			r.Post("/anonymous", authHandler.Anonymous)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/signout", authHandler.SignOut)
			r.Get("/session", authHandler.Session)
		})

		feedHandler := handlers.NewFeedHandler(rt.deps.Feed, rt.deps.Locations, rt.logger, rt.errorHandler)
		r.Get("/feed", feedHandler.GetFeed)
		if rt.deps.Stream != nil {
			r.Handle("/feed/stream", rt.deps.Stream)
		}
		r.Get("/locations", feedHandler.ListLocations)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			memoryHandler := handlers.NewMemoryHandler(rt.deps.Composer, rt.deps.Limits, rt.logger, rt.errorHandler)
			r.Route("/memories", func(r chi.Router) {
				r.Post("/", memoryHandler.CreateMemory)
				r.Patch("/{memoryID}", memoryHandler.UpdateMemory)
				r.Delete("/{memoryID}", memoryHandler.DeleteMemory)
			})

			profileHandler := handlers.NewProfileHandler(rt.deps.Profiles, rt.deps.Limits.MaxFileBytes, rt.logger, rt.errorHandler)
			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Patch("/", profileHandler.UpdateProfile)
				r.Post("/avatar", profileHandler.UploadAvatar)
			})

			r.Get("/wrapped", handlers.NewWrappedHandler(rt.deps.Feed, rt.deps.Profiles, rt.logger, rt.errorHandler).GetWrapped)
		})
	})

	return router
}
