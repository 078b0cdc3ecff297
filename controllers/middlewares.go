package controllers

import (
	"errors"
	"net/http"
	"time"

	"fashionstudio/models"
	"fashionstudio/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader  = "X-Request-Id"
	sessionConfigKey = "__session"
)

func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Set(requestIDHeader, requestID)
			c.Response().Header().Set(requestIDHeader, requestID)
			return next(c)
		}
	}
}

// RequestLogger writes one line per request. The key header is never logged.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			event := log.Info()
			if status >= 500 {
				event = log.Error()
			} else if status >= 400 {
				event = log.Warn()
			}
			event.
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("client_ip", c.RealIP()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("request_id", c.Response().Header().Get(requestIDHeader)).
				Msg("http request")
			return nil
		}
	}
}

// KeyMiddleware builds the request's SessionConfig. Routes behind it need a
// well-formed key unless a server-held fallback may stand in for a missing one.
func KeyMiddleware(defaults services.SessionDefaults, allowMissing bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := services.SessionConfigFromRequest(c.Request(), defaults)
			if !session.HasKey() && !allowMissing {
				return c.JSON(http.StatusUnauthorized, models.ErrorOut{
					Error: models.ErrAPIKeyMissing.Error(),
					Kind:  string(services.KindAuth),
				})
			}
			if session.HasKey() {
				if err := session.APIKey().Validate(); err != nil {
					return c.JSON(http.StatusUnauthorized, models.ErrorOut{
						Error: err.Error(),
						Kind:  string(services.KindAuth),
					})
				}
			}
			c.Set(sessionConfigKey, session)
			return next(c)
		}
	}
}

func SessionFrom(c echo.Context) models.SessionConfig {
	session, _ := c.Get(sessionConfigKey).(models.SessionConfig)
	return session
}

var kindStatus = map[services.ErrorKind]int{
	services.KindAuth:      http.StatusUnauthorized,
	services.KindQuota:     http.StatusTooManyRequests,
	services.KindTransport: http.StatusBadGateway,
	services.KindTimeout:   http.StatusGatewayTimeout,
	services.KindProvider:  http.StatusBadGateway,
	services.KindInvalid:   http.StatusBadRequest,
}

// ErrorHandler answers every failed request with the JSON error body the wizard understands.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if writeErr := writeError(c, err); writeErr != nil {
			log.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}

func writeError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if text, ok := httpErr.Message.(string); ok && text != "" {
			message = text
		}
		if c.Request().Method == http.MethodHead {
			return c.NoContent(httpErr.Code)
		}
		return c.JSON(httpErr.Code, models.ErrorOut{Error: message})
	}

	kind := services.KindOf(err)
	status := kindStatus[kind]
	var providerErr *services.ProviderError
	if errors.As(err, &providerErr) && providerErr.Status == http.StatusForbidden {
		status = http.StatusForbidden
	}
	return c.JSON(status, models.ErrorOut{
		Error:           services.LocalizedMessage(err, SessionFrom(c).Language()),
		Kind:            string(kind),
		ReopenKeyDialog: services.ReopenKeyDialog(err),
	})
}
