package controllers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var corsAllowMethods = strings.Join([]string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}, ", ")

// CORS lets any browser origin through. Preflights end here with 204 and no
// body, so they never reach the gateway or need a key.
func CORS(keyHeader string) echo.MiddlewareFunc {
	allowHeaders := strings.Join([]string{
		echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
		"Accept-Language", requestIDHeader, keyHeader,
	}, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlExposeHeaders, strings.Join([]string{echo.HeaderRetryAfter, requestIDHeader}, ", "))

			if c.Request().Method == http.MethodOptions {
				h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
				h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
				h.Set(echo.HeaderAccessControlMaxAge, "86400")
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
