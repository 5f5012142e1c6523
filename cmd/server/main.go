package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/admin"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/auth"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/config"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/dashboard"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/db"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/metrics"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/pipeline"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/query"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/ratelimit"
	"github.com/HanTheDev/multi-tenant-dashboard/internal/remote"
)

// backend executes queries and stores widget definitions.
type backend interface {
	query.Source
	pipeline.WidgetSource
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("dashboard")

	// Query cache
	queryCache := cache.New(cache.Options{
		TTL:             cfg.CacheTTL,
		CleanupInterval: cfg.CacheCleanupInterval,
		Logger:          logger.Named("cache"),
		Metrics:         collector,
	})
	defer queryCache.Close()

	// Analytics backend
	source, closeSource, err := newBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize analytics backend", zap.Error(err))
	}
	defer closeSource()

	// Refresh limiter
	limiter, err := ratelimit.NewRefreshLimiter(cfg.RedisURL, cfg.RefreshLimitPerHour)
	if err != nil {
		logger.Fatal("Failed to initialize refresh limiter", zap.Error(err))
	}
	defer limiter.Close()

	executor := query.NewExecutor(queryCache, source, logger.Named("query"), collector)
	registry := pipeline.NewRegistry(func() *pipeline.Pipeline {
		return pipeline.New(executor, source, queryCache, pipeline.Options{
			Concurrency: cfg.FetchConcurrency,
			Logger:      logger.Named("pipeline"),
			Metrics:     collector,
		})
	})
	registry.StartSweep(cfg.PipelineIdleTimeout, cfg.PipelineSweepInterval, logger.Named("registry"))
	defer registry.Close()

	router := newRouter(cfg, routerDeps{
		collector: collector,
		cache:     queryCache,
		registry:  registry,
		resolver:  executor,
		limiter:   limiter,
		logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.ServerPort),
			zap.Bool("remote_backend", cfg.UseRemote()),
			zap.Duration("cache_ttl", cfg.CacheTTL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

type routerDeps struct {
	collector *metrics.Collector
	cache     *cache.TTLCache
	registry  *pipeline.Registry
	resolver  pipeline.Resolver
	limiter   dashboard.RefreshLimiter
	logger    *zap.Logger
}

func newRouter(cfg *config.Config, deps routerDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(deps.collector.Middleware)

	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	// Public routes
	router.HandleFunc("/health", healthHandler(cfg)).Methods("GET")
	router.Handle("/metrics", deps.collector.Handler()).Methods("GET")

	// Admin routes
	adminRouter := router.MatcherFunc(pathPrefix("/admin/")).Subrouter()
	adminRouter.Use(authMiddleware.Authenticate, authMiddleware.RequireAdmin)
	admin.NewAdminHandler(deps.cache, cfg.JWTSecret, deps.logger.Named("admin")).RegisterRoutes(adminRouter)

	// Dashboard routes
	apiRouter := router.MatcherFunc(pathPrefix("/api/")).Subrouter()
	apiRouter.Use(authMiddleware.Authenticate)
	dashboard.NewHandler(deps.registry, deps.resolver, deps.limiter, deps.logger.Named("dashboard")).RegisterRoutes(apiRouter)

	return router
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend, func(), error) {
	if cfg.UseRemote() {
		client, err := remote.NewClient(cfg.AnalyticsURL, cfg.RemoteTimeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using analytics service", zap.String("url", cfg.AnalyticsURL))
		return client, func() {}, nil
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
	}
	logger.Info("Using PostgreSQL backend")
	return database, database.Close, nil
}

func pathPrefix(prefix string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}

func healthHandler(cfg *config.Config) http.HandlerFunc {
	backendName := "postgres"
	if cfg.UseRemote() {
		backendName = "analytics"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": "1.0.0",
			"backend": backendName,
		})
	}
}

