package controllers

import (
	"net/http"
	"net/url"

	"fashionstudio/config"
	"fashionstudio/models"
	"fashionstudio/services"
	"fashionstudio/tasks"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterValidation("language", models.ValidateLanguage)
	v.RegisterValidation("apikey", models.ValidateAPIKey)
	return &CustomValidator{validator: v}
}

// Dependencies are built once in cmd/api. Jobs and Sessions are optional so
// the gateway can run on its own.
type Dependencies struct {
	Config    config.AppConfig
	Logger    zerolog.Logger
	Client    *http.Client
	Sessions  services.SessionStore
	Jobs      TaskEnqueuer
	Inspector TaskInspector
	URLs      tasks.ReadURLProvider
}

func SetupServer(deps Dependencies) *echo.Echo {
	cfg := deps.Config
	logger := deps.Logger
	client := deps.Client
	if client == nil {
		client = &http.Client{}
	}

	upstream, err := url.Parse(cfg.Gateway.Upstream)
	if err != nil {
		logger.Fatal().Err(err).Str("upstream", cfg.Gateway.Upstream).Msg("invalid gateway upstream")
	}
	everAIBase, err := url.Parse(cfg.EverAI.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("base_url", cfg.EverAI.BaseURL).Msg("invalid everai base url")
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Pre(CORS(cfg.Gateway.KeyHeader))
	e.Use(RequestID())
	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())
	if cfg.HTTP.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.HTTP.BodyLimit))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	apiGroup := e.Group("/api")

	everAIController := EverAIController{
		Client:     client,
		BaseURL:    everAIBase,
		Token:      cfg.EverAI.Token,
		KeyHeader:  cfg.Gateway.KeyHeader,
		AudioHosts: cfg.EverAI.AudioHosts,
		Timeout:    cfg.Gateway.Timeout,
		Logger:     logger.With().Str("component", "everai-proxy").Logger(),
	}
	everAIController.Routes(apiGroup.Group("/everai"))

	gatewayController := GatewayController{
		Client:            client,
		Upstream:          upstream,
		KeyHeader:         cfg.Gateway.KeyHeader,
		KeyMode:           cfg.Gateway.KeyMode,
		Timeout:           cfg.Gateway.Timeout,
		DefaultRetryAfter: cfg.Gateway.DefaultRetryAfter,
		Logger:            logger.With().Str("component", "gateway").Logger(),
	}
	gatewayController.Routes(apiGroup)

	defaults := services.DefaultsFromConfig(cfg)

	if deps.Sessions != nil {
		sessionController := SessionController{Store: deps.Sessions}
		sessionController.Routes(e.Group("/session", KeyMiddleware(defaults, false)))
	}

	if deps.Jobs != nil && deps.Inspector != nil {
		var sealer *tasks.KeySealer
		if cfg.Worker.KeySecret != "" {
			sealer, _ = tasks.NewKeySealer(cfg.Worker.KeySecret)
		}
		jobsController := JobsController{
			Client:    deps.Jobs,
			Inspector: deps.Inspector,
			URLs:      deps.URLs,
			Sealer:    sealer,
			Retention: cfg.Worker.Retention,
			Logger:    logger.With().Str("component", "jobs").Logger(),
		}
		jobsController.Routes(e.Group("/jobs", KeyMiddleware(defaults, cfg.Gemini.APIKey != "")))
	}

	return e
}
