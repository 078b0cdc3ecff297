package main

import (
	"context"
	"net/http"
	"time"

	"fashionstudio/config"
	"fashionstudio/logging"
	"fashionstudio/models"
	"fashionstudio/services"
	"fashionstudio/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Environment).With().Str("component", "worker").Logger()

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Sentry.Release,
	}); err != nil {
		logger.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Flush(2 * time.Second)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				tasks.QueueGenerate: 7,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Warn().Err(err).Str("task", task.Type()).Int("retried", retried).Msg("task attempt failed")
			}),
		},
	)

	storage, err := services.NewR2Storage(context.Background(), cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("[Queue] failed to initialize asset storage")
	}
	urlCache, err := services.NewURLCacheService(storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("[Queue] failed to initialize URL cache service")
	}

	httpClient := &http.Client{Timeout: cfg.Gateway.Timeout}
	clock := services.RealClock()

	var source services.OperationSource = &services.GenAIOperationSource{
		NewClient: services.NewGenAIClient,
		Model:     cfg.Gemini.VideoModel,
	}
	if cfg.Worker.VideoSource == "gateway" {
		source = &services.GatewayOperationSource{
			Client:    httpClient,
			KeyHeader: cfg.Gateway.KeyHeader,
			Model:     cfg.Gemini.VideoModel,
		}
	}
	poller := services.NewVideoPoller(source, clock, logger)

	everAI := &services.EverAIClient{
		Client:  httpClient,
		BaseURL: cfg.EverAI.BaseURL,
		Token:   cfg.EverAI.Token,
		VoiceID: cfg.EverAI.VoiceID,
	}
	speech := services.NewSpeechOrchestrator(everAI, &services.GeminiSpeechProvider{
		NewClient: services.NewGenAIClient,
		Model:     cfg.Gemini.SpeechModel,
		Voice:     cfg.Gemini.SpeechVoice,
	}, clock, logger)

	var sealer *tasks.KeySealer
	if cfg.Worker.KeySecret != "" {
		if sealer, err = tasks.NewKeySealer(cfg.Worker.KeySecret); err != nil {
			logger.Fatal().Err(err).Msg("[Queue] failed to initialize key sealer")
		}
	}

	handlers := &tasks.Handlers{
		Video: &services.VideoService{
			Poller: poller,
			Downloader: &services.GatewayDownloader{
				Client:    httpClient,
				Upstream:  cfg.Gateway.Upstream,
				KeyHeader: cfg.Gateway.KeyHeader,
			},
		},
		Speech: speech,
		Studio: &services.GoogleStudioProcessor{
			NewClient:    services.NewGenAIClient,
			Model:        cfg.Gemini.ImageModel,
			MaxDimension: services.DefaultMaxDimension,
			Logger:       logger,
		},
		Storage:     storage,
		URLs:        urlCache,
		Defaults:    services.DefaultsFromConfig(*cfg),
		FallbackKey: models.ApiKey(cfg.Gemini.APIKey),
		Sealer:      sealer,
		Logger:      logger,
	}

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Str("video_source", cfg.Worker.VideoSource).Msg("starting worker")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
