package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"konsult/internal/api"
	"konsult/internal/config"
	"konsult/internal/database"
	"konsult/internal/domain"
	"konsult/internal/events"
	"konsult/internal/export"
	"konsult/internal/google"
	"konsult/internal/logging"
	"konsult/internal/metrics"
	"konsult/internal/models"
	"konsult/internal/reconcile"
	"konsult/internal/repository"
	"konsult/internal/service"
	"konsult/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	seeds, err := loadConsultantSeeds(&logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, seeds, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sessions := initSessions(redisClient, &logger)

	poller := reconcile.NewPoller(db, sessions, cfg.Reconcile.MaxRetries, cfg.Reconcile.RetryDelay(), &logger)
	defer poller.Stop()

	eventBus := events.NewEventBus()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := startSheetsWorker(ctx, cfg, db, redisClient, &logger)

	bookingService := service.NewBookingService(db, eventBus, syncer, poller, &logger)
	schedulerService := service.NewSchedulerService(db, &logger)
	guestService := service.NewGuestService(db, sessions, eventBus, &logger)
	exporter := export.NewExcelExporter(db, &logger)

	httpServer := api.NewHTTPServer(cfg.API, schedulerService, bookingService, guestService, exporter, &logger)

	backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
	go backupService.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadConsultantSeeds(logger *zerolog.Logger) ([]models.ConsultantSeed, error) {
	seedsPath := os.Getenv("CONSULTANTS_PATH")
	if seedsPath == "" {
		seedsPath = "configs/consultants.yaml"
	}
	seedsData, err := os.ReadFile(seedsPath)
	if err != nil {
		logger.Error().Err(err).Str("consultants_path", seedsPath).Msg("read consultants")
		return nil, err
	}

	var seedsConfig struct {
		Consultants []models.ConsultantSeed `yaml:"consultants"`
	}
	if err := yaml.Unmarshal(seedsData, &seedsConfig); err != nil {
		logger.Error().Err(err).Str("consultants_path", seedsPath).Msg("parse consultants")
		return nil, err
	}

	if err := config.ValidateConsultantSeeds(seedsConfig.Consultants); err != nil {
		logger.Error().Err(err).Str("consultants_path", seedsPath).Msg("validate consultants")
		return nil, err
	}

	return seedsConfig.Consultants, nil
}

func initDatabase(cfg *config.Config, seeds []models.ConsultantSeed, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	ctx := context.Background()
	for i := range seeds {
		seed := &seeds[i]
		if seed.Timezone == "" {
			seed.Timezone = cfg.Scheduler.DefaultTimezone
		}
		if seed.IncrementMinutes == 0 {
			seed.IncrementMinutes = cfg.Scheduler.IncrementMinutes
		}
		if err := db.UpsertConsultantSeed(ctx, seed); err != nil {
			db.Close()
			logger.Error().Err(err).Str("consultant", seed.Name).Msg("seed consultant")
			return nil, err
		}
	}

	if err := db.RefreshConsultantCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("refresh consultant cache")
	}

	logger.Info().Int("consultants", len(seeds)).Msg("database ready")
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initSessions builds the session store: redis with in-memory failover, or
// plain in-memory when redis is not configured.
func initSessions(redisClient *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	guestTTL := time.Duration(models.GuestSessionTTL) * time.Second
	pendingTTL := time.Duration(models.PendingPollTTL) * time.Second

	memory := repository.NewMemorySessionRepository(guestTTL, pendingTTL)
	if redisClient == nil {
		return memory
	}

	primary := repository.NewRedisSessionRepository(redisClient, guestTTL, pendingTTL)
	return repository.NewFailoverSessionRepository(primary, memory, logger)
}

func startSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) domain.SyncEnqueuer {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		logger.Info().Msg("google sheets not configured, back-office sync disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	logger.Info().Msg("google sheets connected")

	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, logger)
	go sheetsWorker.Start(ctx)
	return sheetsWorker
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
