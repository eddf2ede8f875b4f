package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/config"
	"github.com/medistock/device/internal/handlers"
	custommw "github.com/medistock/device/internal/middleware"
	"github.com/medistock/device/internal/observability"
	"github.com/medistock/device/internal/remote"
	"github.com/medistock/device/internal/repository"
	"github.com/medistock/device/internal/services"
)

const probeInterval = 15 * time.Second

func main() {
	logger := newLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	telemetry, err := observability.Initialize(ctx, "medistock-device", cfg.Tracing.Endpoint, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}
	defer telemetry.Shutdown(context.Background())

	// Local store
	db, err := repository.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open local database")
	}
	defer db.Close()

	queueRepo := repository.NewSyncQueueRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	settingsRepo := repository.NewDeviceSettingsRepository(db)

	clientID, err := settingsRepo.ClientID(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to provision client id")
	}
	logger.WithField("client_id", clientID).Info("device identity ready")

	// Remote backend
	var backend remote.Backend
	switch {
	case cfg.Remote.UsePostgres():
		logger.Info("using direct Postgres backend")
		pg, err := remote.NewPostgresBackend(cfg.Remote.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize Postgres backend")
		}
		defer pg.Close()
		backend = pg
	case cfg.Remote.IsConfigured():
		logger.WithField("url", cfg.Remote.BaseURL).Info("using HTTP backend")
		backend = remote.NewHTTPBackend(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.APIKeyHeader)
	default:
		logger.Warn("remote not configured, running in offline mode")
	}

	// Services
	resolver := services.NewConflictResolver()
	enqueueService := services.NewEnqueueService(db, queueRepo, recordRepo, settingsRepo, logger)
	processor := services.NewQueueProcessor(queueRepo, recordRepo, backend, resolver, cfg.Sync, logger)
	orchestrator := services.NewOrchestrator()
	statusManager := services.NewStatusManager(queueRepo, settingsRepo, logger)
	syncManager := services.NewSyncManager(queueRepo, recordRepo, settingsRepo, backend, processor, orchestrator, statusManager, logger)
	scheduler := services.NewScheduler(syncManager, cfg.Sync.SyncInterval(), logger)

	var listener *services.RealtimeListener
	if cfg.Realtime.Enabled && cfg.Realtime.URL != "" {
		client := remote.NewRealtimeClient(cfg.Realtime.URL, cfg.Remote.APIKey, logger)
		listener = services.NewRealtimeListener(client, recordRepo, settingsRepo, logger)
	}

	monitor := services.NewProbeMonitor(backend, probeInterval, logger)
	monitor.SetCallbacks(
		func() {
			statusManager.SetOnline(true)
			if listener != nil {
				if _, err := listener.Start(ctx); err != nil {
					logger.WithError(err).Warn("failed to open realtime feed")
				}
			}
			scheduler.TriggerImmediate("connectivity restored")
		},
		func() {
			statusManager.SetOnline(false)
			if listener != nil {
				listener.Stop()
			}
		},
	)

	monitor.Start(ctx)
	scheduler.Start(ctx)
	defer scheduler.Stop()
	defer monitor.Stop()

	// Status API
	statusHandler := handlers.NewStatusHandler(statusManager, processor, scheduler, queueRepo)
	recordHandler := handlers.NewRecordHandler(enqueueService, recordRepo)
	healthHandler := handlers.NewHealthHandler()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Security.APIKey != "" {
		r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))
	}

	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/status", statusHandler.GetStatus)
		r.Get("/conflicts", statusHandler.ListConflicts)
		r.Post("/trigger", statusHandler.TriggerSync)
		r.Post("/retry", statusHandler.RetryFailed)
		r.Post("/conflicts/{id}/resolve", statusHandler.ResolveConflict)
	})

	r.Route("/api/records/{entity}", func(r chi.Router) {
		r.Get("/", recordHandler.ListRecords)
		r.Post("/", recordHandler.CreateRecord)
		r.Get("/{id}", recordHandler.GetRecord)
		r.Put("/{id}", recordHandler.UpdateRecord)
		r.Delete("/{id}", recordHandler.DeleteRecord)
	})

	srv := &http.Server{
		Addr:         cfg.StatusAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("address", cfg.StatusAddress).Info("status API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("status API error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	processor.Stop()
	if listener != nil {
		listener.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("forced shutdown")
	}

	logger.Info("stopped")
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
