package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"barberbook/internal/api"
	"barberbook/internal/authority"
	"barberbook/internal/availability"
	"barberbook/internal/config"
	"barberbook/internal/database"
	"barberbook/internal/domain"
	"barberbook/internal/events"
	"barberbook/internal/lifecycle"
	"barberbook/internal/logging"
	"barberbook/internal/metrics"
	"barberbook/internal/repository"
	"barberbook/internal/service"
	"barberbook/internal/sweep"
	"barberbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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
		defer func() { _ = closer.Close() }()
	}

	if err := loadShopSchedules(cfg, &logger); err != nil {
		return err
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	client := authority.NewClient(authority.Options{
		BaseURL: cfg.Authority.BaseURL,
		Token:   cfg.Authority.Token,
		Timeout: cfg.Authority.Timeout,
		RPS:     cfg.Authority.RPS,
		Burst:   cfg.Authority.Burst,
	}, &logger)
	if redisClient != nil {
		client.UseRedisCache(redisClient, cfg.Authority.CacheTTL)
	}

	viewCache := initViewCache(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()
	subscribeAppointmentEvents(eventBus, &logger)

	// Воркер повторных отмен в авторитетной системе
	reconciler := worker.NewReconcileWorker(db, client, db, redisClient, worker.RetryPolicy{
		MaxRetries:    cfg.Sweep.Retry.MaxRetries,
		InitialDelay:  cfg.Sweep.Retry.InitialDelay,
		MaxDelay:      cfg.Sweep.Retry.MaxDelay,
		BackoffFactor: cfg.Sweep.Retry.BackoffFactor,
	}, &logger)
	go reconciler.Start(ctx)

	machine := lifecycle.NewMachine()
	appointments := service.NewAppointmentService(service.Dependencies{
		Authority:  client,
		Machine:    machine,
		Sweeper:    sweep.NewSweeper(machine, reconciler, cfg.Sweep.MaxConcurrent, &logger),
		Calculator: availability.NewCalculator(cfg.Schedule.Schedules(), &logger),
		Cache:      viewCache,
		Journal:    db,
		Events:     eventBus,
		Location:   loc,
		Logger:     &logger,
	})

	scheduler := worker.NewSweepScheduler(appointments, cfg.Sweep.Interval, &logger)
	go scheduler.Start(ctx)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	checks := map[string]api.HealthCheck{
		"authority": client.HealthCheck,
		"database":  db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}
	httpServer := api.NewHTTPServer(cfg.API, appointments, checks, &logger)

	return serve(ctx, httpServer, cfg, &logger)
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

// loadShopSchedules merges the per-shop grids of shops.yaml over the config.
func loadShopSchedules(cfg *config.Config, logger *zerolog.Logger) error {
	shopsPath := os.Getenv("SHOPS_PATH")
	if shopsPath == "" {
		shopsPath = cfg.Schedule.ShopsFile
	}
	if shopsPath == "" {
		return nil
	}

	data, err := os.ReadFile(shopsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && os.Getenv("SHOPS_PATH") == "" {
			logger.Warn().Str("shops_path", shopsPath).Msg("shops file not found, using config schedules")
			return nil
		}
		logger.Error().Err(err).Str("shops_path", shopsPath).Msg("read shops")
		return err
	}

	var shopsConfig struct {
		Shops map[int64]availability.Schedule `yaml:"shops"`
	}
	if err := yaml.Unmarshal(data, &shopsConfig); err != nil {
		logger.Error().Err(err).Str("shops_path", shopsPath).Msg("parse shops")
		return err
	}

	if err := config.ValidateSchedules(cfg.Schedule.Default, shopsConfig.Shops); err != nil {
		logger.Error().Err(err).Msg("shop schedules validation failed")
		return err
	}

	if cfg.Schedule.Shops == nil {
		cfg.Schedule.Shops = make(map[int64]availability.Schedule, len(shopsConfig.Shops))
	}
	for id, sch := range shopsConfig.Shops {
		cfg.Schedule.Shops[id] = sch
	}
	logger.Info().Int("shops", len(shopsConfig.Shops)).Str("shops_path", shopsPath).Msg("shop schedules loaded")
	return nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if cfg.Backup.Enabled && cfg.Backup.StoragePath != "" {
		if err := os.MkdirAll(cfg.Backup.StoragePath, 0o755); err != nil {
			logger.Error().Err(err).Msg("create backup directory")
			return err
		}
	}
	return nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initViewCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.ViewCache {
	memory := repository.NewMemoryViewCache(cfg.Redis.ViewTTL)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverViewCache(repository.NewRedisViewCache(redisClient, cfg.Redis.ViewTTL), memory, logger)
}

func subscribeAppointmentEvents(bus *events.EventBus, logger *zerolog.Logger) {
	l := logger.With().Str("component", "events").Logger()
	bus.SubscribeAll(func(ev *events.Event) error {
		p, err := events.DecodeAppointment(ev)
		if err != nil {
			return err
		}
		l.Info().
			Str("type", ev.Type).
			Int64("appointment_id", p.AppointmentID).
			Int64("shop_id", p.ShopID).
			Str("from", p.FromStatus).
			Str("to", p.Status).
			Str("source", p.Source).
			Msg("appointment event")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return serveErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
