package controllers

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fashionstudio/models"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	KeyModeQuery  = "query"
	KeyModeHeader = "header"

	upstreamKeyHeader = "x-goog-api-key"
	maxErrorBodyBytes = 64 << 10
)

// Headers that describe one hop, or the browser itself, and must not reach the upstream.
var strippedRequestHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
	"Host", "Origin", "Referer", "Cookie", "Accept-Encoding",
}

// GatewayController forwards /api/* to the generative language API with the
// caller's key moved to where the upstream expects it.
type GatewayController struct {
	Client            *http.Client
	Upstream          *url.URL
	KeyHeader         string
	KeyMode           string
	Timeout           time.Duration
	DefaultRetryAfter int
	Now               func() time.Time
	Logger            zerolog.Logger
}

func (g *GatewayController) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *GatewayController) Routes(group *echo.Group) {
	group.Any("/*", g.Proxy)
}

func (g *GatewayController) upstreamURL(req *http.Request, key string) (*url.URL, error) {
	suffix := strings.TrimPrefix(req.URL.EscapedPath(), "/api")
	target, err := url.Parse(strings.TrimRight(g.Upstream.String(), "/") + suffix)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	query.Del("key")
	if g.KeyMode == KeyModeQuery {
		query.Set("key", key)
	}
	target.RawQuery = query.Encode()
	return target, nil
}

func forwardHeaders(in http.Header, drop ...string) http.Header {
	out := in.Clone()
	for _, name := range strippedRequestHeaders {
		out.Del(name)
	}
	for _, name := range drop {
		out.Del(name)
	}
	return out
}

func (g *GatewayController) Proxy(c echo.Context) error {
	req := c.Request()
	key := strings.TrimSpace(req.Header.Get(g.KeyHeader))
	if key == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing " + g.KeyHeader + " header"})
	}

	target, err := g.upstreamURL(req, key)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid upstream path"})
	}

	ctx, cancel := withTimeout(req.Context(), g.Timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	out.ContentLength = req.ContentLength
	out.Header = forwardHeaders(req.Header, g.KeyHeader, upstreamKeyHeader)
	if g.KeyMode == KeyModeHeader {
		out.Header.Set(upstreamKeyHeader, key)
	}

	resp, err := g.Client.Do(out)
	if err != nil {
		g.Logger.Error().Err(err).Str("path", target.Path).Msg("gateway upstream request failed")
		if hub := sentryecho.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upstream request failed: " + err.Error()})
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return g.rateLimited(c, resp)
	}
	return passThrough(c, resp)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// passThrough streams status, Content-Type and body to the caller as received.
func passThrough(c echo.Context, resp *http.Response) error {
	if contentType := resp.Header.Get(echo.HeaderContentType); contentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, contentType)
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err := io.Copy(c.Response(), resp.Body)
	return err
}

type quotaBody struct {
	Error struct {
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

func (g *GatewayController) rateLimited(c echo.Context, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	retryAfter, message := g.retryHint(resp.Header.Get(echo.HeaderRetryAfter), body)
	g.Logger.Warn().Int("retry_after", retryAfter).Msg("upstream quota exhausted")
	c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retryAfter))
	return c.JSON(http.StatusTooManyRequests, models.RateLimitedOut{Error: message, RetryAfter: retryAfter})
}

// retryHint prefers Retry-After, then the RetryInfo delay in the error body,
// then the configured default.
func (g *GatewayController) retryHint(header string, body []byte) (int, string) {
	message := "rate limit exceeded"
	var parsed quotaBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	if seconds, ok := parseRetryAfter(header, g.now()); ok {
		return seconds, message
	}
	for _, detail := range parsed.Error.Details {
		if detail.RetryDelay == "" {
			continue
		}
		if d, err := time.ParseDuration(detail.RetryDelay); err == nil && d >= 0 {
			return int(math.Ceil(d.Seconds())), message
		}
	}
	return g.DefaultRetryAfter, message
}

func parseRetryAfter(value string, now time.Time) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return seconds, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	wait := int(math.Ceil(at.Sub(now).Seconds()))
	if wait < 0 {
		wait = 0
	}
	return wait, true
}
