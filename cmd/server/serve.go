package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"tms/internal/app"
	"tms/internal/config"
	"tms/internal/events"
	"tms/internal/handler"
	"tms/internal/logger"
	"tms/internal/metrics"
	"tms/internal/middleware"
	"tms/internal/migrations"
	internalRedis "tms/internal/redis"
	"tms/internal/repository/postgres"
	"tms/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	nrApp := newRelicApp(cfg.NewRelic, log)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	db, err := app.NewDatabase(startCtx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Infof("connected to PostgreSQL at %s:%s/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(startCtx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Infof("database migrations applied")
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(startCtx, cfg.Redis, nrApp)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Infof("connected to Redis at %s", cfg.Redis.Addr)
	} else {
		log.Warnf("redis disabled: no driver lock, read cache or idempotent replay")
	}

	var publisher service.EventPublisher = events.NewLogPublisher(newLogger(cfg, "events"))
	if cfg.AMQP.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("connect to amqp: %w", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Infof("publishing dispatch events to exchange %s", cfg.AMQP.Exchange)
	}

	recorder, err := metrics.NewPromRecorder(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	server := wireServer(db, redisClient, nrApp, publisher, recorder, log, cfg)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Infof("server exited")
	return nil
}

func newRelicApp(cfg config.NewRelicConfig, log logger.Logger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}
	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		log.Warnf("failed to initialize New Relic: %v", err)
		return nil
	}
	log.Infof("New Relic enabled: app=%s (with DB instrumentation)", cfg.AppName)
	return nrApp
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *goredis.Client,
	nrApp *newrelic.Application,
	publisher service.EventPublisher,
	recorder *metrics.PromRecorder,
	log logger.Logger,
	cfg *config.Config,
) *http.Server {
	// Redis-backed collaborators stay nil interfaces when redis is disabled.
	var (
		lockStore        internalRedis.LockStoreInterface
		cacheStore       internalRedis.DispatchCacheInterface
		idempotencyStore middleware.ResponseStore
	)
	if redisClient != nil {
		lockStore = internalRedis.NewLockStore(redisClient)
		cacheStore = internalRedis.NewCacheStore(redisClient, cfg.Redis.CacheTTL)
		idempotencyStore = internalRedis.NewIdempotencyStore(redisClient)
	}

	// Initialize repositories.
	txManager := postgres.NewTxManager(db)
	driverRepo := postgres.NewDriverRepository(db)
	dispatchRepo := postgres.NewDispatchRepository(db)

	// Initialize services.
	dispatchService := service.NewDispatchService(txManager, service.DispatchServiceOptions{
		LockStore:     lockStore,
		Cache:         cacheStore,
		Publisher:     publisher,
		Metrics:       recorder,
		Logger:        newLogger(cfg, "dispatch"),
		DriverLockTTL: cfg.Redis.DriverLockTTL,
	})
	queryService := service.NewQueryService(dispatchRepo, cacheStore, newLogger(cfg, "query"))
	availabilityService := service.NewAvailabilityService(driverRepo, dispatchRepo, recorder)

	// Initialize handlers.
	dispatchHandler := handler.NewDispatchHandler(dispatchService, queryService)
	driverHandler := handler.NewDriverHandler(availabilityService, queryService, nil)

	router := app.NewRouter(app.RouterDeps{
		DispatchHandler:  dispatchHandler,
		DriverHandler:    driverHandler,
		IdempotencyStore: idempotencyStore,
		Metrics:          recorder.Handler(),
		NewRelicApp:      nrApp,
		Logger:           log,
		Config:           cfg,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
