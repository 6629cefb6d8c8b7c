package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlinkhq/telehealth-triage/internal/config"
	"github.com/medlinkhq/telehealth-triage/internal/consultation"
	"github.com/medlinkhq/telehealth-triage/internal/db"
	redisclient "github.com/medlinkhq/telehealth-triage/internal/redis"
	"github.com/medlinkhq/telehealth-triage/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "expiry-worker").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("waiting_ttl", cfg.WaitingTTL).
		Msg("expiry-worker starting up")

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

	triageRepo := triage.NewPgRepository(pgPool)
	consultRepo := consultation.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSessionLocker(rdb, cfg.LockTTL)
	svc := consultation.NewService(consultRepo, triageRepo, locker, logger)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.WaitingTTL, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.WaitingTTL, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *consultation.Service, ttl time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExpireStaleWaiting(runCtx, ttl); err != nil {
		logger.Error().Err(err).Msg("expiry run error")
		return
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("expiry run complete")
}
