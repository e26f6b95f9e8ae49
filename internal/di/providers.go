package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lens-backend/internal/composer"
	"lens-backend/internal/config"
	"lens-backend/internal/feed"
	"lens-backend/internal/interfaces/http/rest"
	"lens-backend/internal/interfaces/http/rest/handlers"
	"lens-backend/internal/interfaces/http/rest/middleware"
	"lens-backend/internal/interfaces/websocket"
	"lens-backend/internal/media"
	"lens-backend/internal/observability"
	"lens-backend/internal/profile"
	"lens-backend/internal/realtime"
	"lens-backend/internal/repository"
	"lens-backend/internal/repository/inmem"
	"lens-backend/internal/session"
	"lens-backend/internal/store/postgres"
	"lens-backend/internal/supabase"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build(zap.Fields(zap.String("service", cfg.Tracing.ServiceName)))
}

// ProvideMetrics creates the Prometheus collector.
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("lens")
}

// ProvideTracer initializes tracing and flushes it on cleanup.
func ProvideTracer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (trace.Tracer, func(), error) {
	tp, err := observability.InitTracing(ctx, observability.TracingOptions{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	return tp.Tracer(), cleanup, nil
}

// ProvideErrorHandler creates the HTTP error handler.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideSupabaseClient creates the BaaS client factory.
func ProvideSupabaseClient(cfg *config.Config) (*supabase.Client, error) {
	return supabase.NewClient(supabase.Config{
		URL:     cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
		Schema:  cfg.Supabase.Schema,
		Bucket:  cfg.Supabase.Bucket,
	})
}

// ProvideRealtimeClient creates the change-feed client. Only the supabase
// driver uses it; for the others it is nil.
func ProvideRealtimeClient(cfg *config.Config, logger *zap.Logger) *realtime.Client {
	if cfg.Store.Driver != config.DriverSupabase {
		return nil
	}
	return realtime.NewClient(realtime.Config{
		URL:        cfg.Supabase.URL,
		APIKey:     cfg.Supabase.AnonKey,
		Heartbeat:  cfg.Supabase.RealtimeHeartbeat,
		MaxBackoff: cfg.Supabase.RealtimeMaxBackoff,
	}, logger.Named("realtime"))
}

// Stores are the raw driver-specific repositories.
type Stores struct {
	Memories repository.MemoryRepository
	Profiles repository.ProfileRepository
	// Listener is set for the postgres driver.
	Listener *postgres.Listener
}

// ProvideStores builds the repositories for the configured driver.
func ProvideStores(ctx context.Context, cfg *config.Config, sb *supabase.Client, rt *realtime.Client, logger *zap.Logger) (*Stores, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSupabase:
		profiles := supabase.NewProfileRepository(sb)
		memories := repository.NewAuthorEnricher(
			supabase.NewMemoryRepository(sb, rt, logger.Named("memories")),
			profiles, cfg.Feed.FetchTimeout, logger)
		return &Stores{Memories: memories, Profiles: profiles}, func() {}, nil

	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Store.PostgresDSN, cfg.Store.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		memories := postgres.NewMemoryStore(pool, logger.Named("memories"))
		stores := &Stores{
			Memories: memories,
			Profiles: postgres.NewProfileStore(pool),
			Listener: postgres.NewListener(pool, memories, cfg.Supabase.RealtimeMaxBackoff, logger.Named("listener")),
		}
		return stores, pool.Close, nil

	case config.DriverMemory:
		logger.Warn("Using the in-memory store; data is lost on exit")
		return &Stores{Memories: inmem.NewMemoryStore(), Profiles: inmem.NewProfileStore()}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// ProvideBreaker creates the shared store circuit breaker, or nil when it is
// disabled.
func ProvideBreaker(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *repository.Breaker {
	if !cfg.Breaker.Enabled {
		return nil
	}
	return repository.NewBreaker(repository.BreakerConfig{
		Name:             "store",
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		FailureRatio:     cfg.Breaker.FailureRatio,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerChanges.WithLabelValues(name, to.String()).Inc()
		},
	}, logger)
}

// ProvideMemoryRepository decorates the memory store with the breaker and
// instrumentation.
func ProvideMemoryRepository(stores *Stores, breaker *repository.Breaker, tracer trace.Tracer, metrics *observability.Collector) repository.MemoryRepository {
	repo := stores.Memories
	if breaker != nil {
		repo = repository.NewBreakerMemoryRepository(repo, breaker)
	}
	return repository.NewInstrumentedMemoryRepository(repo, tracer, metrics)
}

// ProvideProfileRepository decorates the profile store the same way.
func ProvideProfileRepository(stores *Stores, breaker *repository.Breaker, tracer trace.Tracer, metrics *observability.Collector) repository.ProfileRepository {
	repo := stores.Profiles
	if breaker != nil {
		repo = repository.NewBreakerProfileRepository(repo, breaker)
	}
	return repository.NewInstrumentedProfileRepository(repo, tracer, metrics)
}

// ProvideSessionManager creates the session manager. Tokens are verified
// locally when a JWT secret is configured.
func ProvideSessionManager(cfg *config.Config, sb *supabase.Client, logger *zap.Logger) (*session.Manager, error) {
	var verifier *auth.JWTValidator
	if cfg.Supabase.JWTSecret != "" {
		v, err := auth.NewJWTValidator(auth.JWTConfig{
			SecretKey: cfg.Supabase.JWTSecret,
			Audience:  []string{"authenticated"},
		})
		if err != nil {
			return nil, err
		}
		verifier = v
	}
	return session.NewManager(supabase.NewAuthProvider(sb), verifier, logger.Named("session")), nil
}

// ProvideObjectStore creates the attachment store.
func ProvideObjectStore(cfg *config.Config, sb *supabase.Client) media.ObjectStore {
	return supabase.NewObjectStore(sb, cfg.Media.CacheControl)
}

// ProvideUploader creates the media uploader.
func ProvideUploader(cfg *config.Config, store media.ObjectStore, metrics *observability.Collector, logger *zap.Logger) *media.Uploader {
	return media.NewUploader(store, media.HEICConverter{Quality: cfg.Media.JPEGQuality}, media.Config{
		MaxFiles:       cfg.Media.MaxFiles,
		MaxFileBytes:   cfg.Media.MaxFileBytes,
		MaxConcurrency: cfg.Media.MaxConcurrentUploads,
	}, logger.Named("media"), metrics)
}

// ProvideProfileService creates the profile store and evicts cached
// profiles on sign-out.
func ProvideProfileService(cfg *config.Config, repo repository.ProfileRepository, uploader *media.Uploader, sessions *session.Manager, metrics *observability.Collector, logger *zap.Logger) (*profile.Service, func()) {
	svc := profile.NewService(repo, uploader, cfg.Profile.CacheTTL, logger.Named("profile"), metrics)
	sub := sessions.OnAuthStateChange(svc.HandleAuthChange)
	return svc, func() {
		sub.Close()
		svc.Close()
	}
}

// ProvideSynchronizer creates the shared feed.
func ProvideSynchronizer(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) *feed.Synchronizer {
	return feed.NewSynchronizer(
		feed.WithWindow(cfg.Feed.Window),
		feed.WithLogger(logger.Named("feed")),
		feed.WithMetrics(metrics),
	)
}

// ProvideLoader creates the feed loader.
func ProvideLoader(cfg *config.Config, repo repository.MemoryRepository, sync *feed.Synchronizer, logger *zap.Logger) *feed.Loader {
	return feed.NewLoader(repo, sync, cfg.Feed.Window, cfg.Feed.FetchTimeout, logger.Named("loader"))
}

// ProvideComposer creates the composer.
func ProvideComposer(cfg *config.Config, repo repository.MemoryRepository, uploader *media.Uploader, sync *feed.Synchronizer, metrics *observability.Collector, logger *zap.Logger) *composer.Composer {
	return composer.New(repo, uploader, sync, cfg.Media.MaxFiles, logger.Named("composer"), metrics)
}

// ProvideLocationCatalog loads suggested locations and watches the file.
func ProvideLocationCatalog(cfg *config.Config, logger *zap.Logger) (*config.LocationCatalog, func(), error) {
	c, err := config.NewLocationCatalog(cfg.Locations, logger.Named("locations"))
	if err != nil {
		return nil, nil, err
	}
	return c, c.Stop, nil
}

// ProvideHub creates the feed-stream hub.
func ProvideHub(cfg *config.Config, sync *feed.Synchronizer, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(sync, cfg.Server.AllowedOrigins, logger.Named("stream"))
}

// RateLimiters are the per-IP and per-user request budgets.
type RateLimiters struct {
	IP   middleware.Limit
	User middleware.Limit
}

// ProvideRateLimiters creates the limiters, or zero limits when disabled.
func ProvideRateLimiters(cfg *config.Config) (*RateLimiters, func()) {
	if !cfg.RateLimit.Enabled {
		return &RateLimiters{}, func() {}
	}
	ip := auth.NewPerMinuteLimiter(cfg.RateLimit.IPPerMinute)
	user := auth.NewPerMinuteLimiter(cfg.RateLimit.UserPerMinute)
	limits := &RateLimiters{
		IP:   middleware.Limit{Limiter: auth.NewIPRateLimiter(ip), PerMinute: cfg.RateLimit.IPPerMinute},
		User: middleware.Limit{Limiter: auth.NewUserRateLimiter(user), PerMinute: cfg.RateLimit.UserPerMinute},
	}
	return limits, func() {
		ip.Close()
		user.Close()
	}
}

// ProvideHTTPHandler assembles the router.
func ProvideHTTPHandler(
	cfg *config.Config,
	sessions *session.Manager,
	sync *feed.Synchronizer,
	loader *feed.Loader,
	locations *config.LocationCatalog,
	comp *composer.Composer,
	profiles *profile.Service,
	hub *websocket.Hub,
	limits *RateLimiters,
	metrics *observability.Collector,
	errs *apperrors.ErrorHandler,
	logger *zap.Logger,
) http.Handler {
	deps := rest.Deps{
		Sessions:  sessions,
		Feed:      sync,
		Ready:     loader,
		Locations: locations,
		Composer:  comp,
		Profiles:  profiles,
		Limits: handlers.UploadLimits{
			MaxFiles:     cfg.Media.MaxFiles,
			MaxFileBytes: cfg.Media.MaxFileBytes,
		},
		Stream: hub,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics
	}
	return rest.NewRouter(deps, rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsPath:    cfg.Metrics.Path,
		IPLimit:        limits.IP,
		UserLimit:      limits.User,
	}, logger.Named("http"), errs).Setup()
}

// ProvideHTTPServer creates the HTTP server.
func ProvideHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
