package controllers

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// EverAIController relays the TTS provider with the server's bearer token and
// lets the browser fetch generated audio without CORS trouble.
type EverAIController struct {
	Client     *http.Client
	BaseURL    *url.URL
	Token      string
	KeyHeader  string
	AudioHosts []string
	Timeout    time.Duration
	Logger     zerolog.Logger
}

func (e *EverAIController) Routes(group *echo.Group) {
	group.GET("/audio-proxy", e.AudioProxy)
	group.Any("/*", e.Proxy)
}

func (e *EverAIController) Proxy(c echo.Context) error {
	if e.Token == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "speech provider is not configured"})
	}
	req := c.Request()
	suffix := strings.TrimPrefix(req.URL.EscapedPath(), "/api/everai")
	target, err := url.Parse(strings.TrimRight(e.BaseURL.String(), "/") + suffix)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid path"})
	}
	target.RawQuery = req.URL.RawQuery

	ctx, cancel := withTimeout(req.Context(), e.Timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	out.ContentLength = req.ContentLength
	out.Header = forwardHeaders(req.Header, echo.HeaderAuthorization, e.KeyHeader)
	out.Header.Set(echo.HeaderAuthorization, "Bearer "+e.Token)

	resp, err := e.Client.Do(out)
	if err != nil {
		e.Logger.Error().Err(err).Str("path", target.Path).Msg("everai upstream request failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "speech provider unreachable"})
	}
	defer resp.Body.Close()
	return passThrough(c, resp)
}

// allowedHost checks the configured allowlist. Without one, any public host
// passes and internal addresses (loopback, private, link-local) are refused.
func (e *EverAIController) allowedHost(ctx context.Context, host string) bool {
	host = strings.ToLower(host)
	if len(e.AudioHosts) == 0 {
		return !internalHost(ctx, host)
	}
	for _, allowed := range e.AudioHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func internalHost(ctx context.Context, host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return internalIP(ip)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		// the fetch reports unresolvable hosts as a 502
		return false
	}
	for _, addr := range addrs {
		if internalIP(addr.IP) {
			return true
		}
	}
	return false
}

func internalIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast()
}

func (e *EverAIController) AudioProxy(c echo.Context) error {
	raw := c.QueryParam("url")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url is required"})
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "url must be an absolute http(s) url"})
	}
	if !e.allowedHost(c.Request().Context(), target.Hostname()) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "host is not allowed"})
	}

	ctx, cancel := withTimeout(c.Request().Context(), e.Timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	resp, err := e.Client.Do(out)
	if err != nil {
		e.Logger.Warn().Err(err).Str("host", target.Host).Msg("audio fetch failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "audio fetch failed"})
	}
	defer resp.Body.Close()
	return passThrough(c, resp)
}
