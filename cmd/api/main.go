package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fashionstudio/config"
	"fashionstudio/controllers"
	"fashionstudio/logging"
	"fashionstudio/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func newSessionStore(ctx context.Context, cfg *config.AppConfig) (services.SessionStore, error) {
	if cfg.Session.Backend == "redis" {
		client, err := services.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return services.NewRedisSessionStore(client, cfg.Session.TTL), nil
	}
	return services.NewCacheSessionStore(cfg.Session.TTL)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Environment)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Sentry.Release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Session.Backend).Msg("failed to initialize session store")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	asynqInspector := asynq.NewInspector(redisOpt)
	defer asynqInspector.Close()

	deps := controllers.Dependencies{
		Config:    *cfg,
		Logger:    logger,
		Client:    &http.Client{},
		Sessions:  sessions,
		Jobs:      asynqClient,
		Inspector: asynqInspector,
	}
	if storage, err := services.NewR2Storage(ctx, cfg.Storage); err == nil {
		urlCache, err := services.NewURLCacheService(storage, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize URL cache service")
		}
		deps.URLs = urlCache
	} else {
		logger.Warn().Err(err).Msg("asset storage disabled, job results keep the links the worker wrote")
	}

	e := controllers.SetupServer(deps)
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.HTTP.RateLimit))))
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))

	go shutdownOnSignal(ctx, e.Shutdown, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	logger.Info().Str("addr", addr).Str("upstream", cfg.Gateway.Upstream).Str("key_mode", cfg.Gateway.KeyMode).Msg("starting api")
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func shutdownOnSignal(ctx context.Context, shutdown func(context.Context) error, logger zerolog.Logger) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
