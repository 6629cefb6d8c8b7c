package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlinkhq/telehealth-triage/internal/api"
	"github.com/medlinkhq/telehealth-triage/internal/config"
	"github.com/medlinkhq/telehealth-triage/internal/consultation"
	"github.com/medlinkhq/telehealth-triage/internal/db"
	"github.com/medlinkhq/telehealth-triage/internal/llm"
	redisclient "github.com/medlinkhq/telehealth-triage/internal/redis"
	"github.com/medlinkhq/telehealth-triage/internal/signaling"
	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	ai := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	locker := redisclient.NewRedisSessionLocker(rdb, cfg.LockTTL)

	triageRepo := triage.NewPgRepository(pgPool)
	coordinator := triage.NewCoordinator(triageRepo, ai, rdb, logger)

	consultRepo := consultation.NewPgRepository(pgPool)
	consultSvc := consultation.NewService(consultRepo, triageRepo, locker, logger)

	hub := signaling.NewHub(consultSvc, logger)
	wsHandler := signaling.NewHandler(hub, logger)

	router := api.NewRouter(api.RouterConfig{
		Triage:        coordinator,
		Consultations: consultSvc,
		WS:            wsHandler,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	logger.Info().Msg("api-server stopped")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
