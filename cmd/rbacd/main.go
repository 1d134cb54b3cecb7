package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/auth-apps/rbacd/pkg/api"
	"github.com/auth-apps/rbacd/pkg/config"
	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/rbac"
	"github.com/auth-apps/rbacd/pkg/session"
	"github.com/auth-apps/rbacd/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting rbacd")

	db, err := storage.NewPostgres(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := rbac.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Migrations failed")
		os.Exit(1)
	}
	logger.Info("Migrations applied")

	redisClient, err := storage.NewRedis(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	store := rbac.NewStore(db)
	cache := rbac.NewCache(redisClient, store, cfg.Session.Namespace, metrics, logger)

	// Prime the cache before serving; authorization reads never fall
	// back to the database.
	if err := cache.RefreshAll(ctx, "startup"); err != nil {
		logger.WithError(err).Error("Initial cache refresh failed")
		os.Exit(1)
	}
	logger.Info("RBAC cache primed")

	sessions := session.NewRegistry(redisClient,
		cfg.Session.Namespace, cfg.Session.AccessTTL, cfg.Session.RefreshTTL, metrics)

	server := api.NewServer(store, cache, sessions, logger, metrics)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port so probes bypass the API
	// middleware stack
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/health", healthChecker.Liveness).Methods("GET")
	healthRouter.HandleFunc("/ready", healthChecker.Readiness).Methods("GET")
	if metrics != nil {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)

	if cfg.Cache.RefreshInterval > 0 {
		scheduler := cron.New()
		_, err := scheduler.AddFunc("@every "+cfg.Cache.RefreshInterval.String(), func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := cache.RefreshAll(refreshCtx, "periodic"); err != nil {
				logger.WithError(err).Error("Periodic cache refresh failed")
			}
		})
		if err != nil {
			logger.WithError(err).Error("Failed to schedule cache refresh")
			os.Exit(1)
		}
		scheduler.Start()
		logger.WithField("interval", cfg.Cache.RefreshInterval.String()).Info("Periodic cache refresh scheduled")

		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
