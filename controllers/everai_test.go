package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fashionstudio/config"
	"fashionstudio/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEverAIProxyNeedsToken(t *testing.T) {
	upstream, _, hits := recordingUpstream(t, http.StatusOK, "application/json", `{}`)
	ts := newTestServer(t, func(cfg *config.AppConfig) { cfg.EverAI.BaseURL = upstream.URL })

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/everai/v1/tts", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.EqualValues(t, 0, hits.Load())
}

func TestEverAIProxyAddsBearer(t *testing.T) {
	upstream, seen, _ := recordingUpstream(t, http.StatusOK, "application/json", `{"status":1,"result":{"request_id":"r-1"}}`)
	ts := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.EverAI.BaseURL = upstream.URL
		cfg.EverAI.Token = "everai-secret"
	})

	req := httptest.NewRequest(http.MethodPost, "/api/everai/v1/tts?debug=1", strings.NewReader(`{"input_text":"xin chao"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer caller-token")
	req.Header.Set("X-Goog-Api-Key", test.TestAPIKey)
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":1,"result":{"request_id":"r-1"}}`, rec.Body.String())
	assert.Equal(t, "/v1/tts", seen.path)
	assert.Equal(t, []string{"1"}, seen.query["debug"])
	assert.Equal(t, "Bearer everai-secret", seen.header.Get("Authorization"))
	assert.Empty(t, seen.header.Get("X-Goog-Api-Key"))
	assert.Equal(t, `{"input_text":"xin chao"}`, seen.body)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEverAIProxyUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := upstream.URL
	upstream.Close()
	ts := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.EverAI.BaseURL = deadURL
		cfg.EverAI.Token = "everai-secret"
	})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/everai/v1/tts/r-1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAudioProxy(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(w, "ID3-audio-bytes")
	}))
	defer audio.Close()
	ts := newTestServer(t, allowLoopbackAudio)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/everai/audio-proxy?url="+url.QueryEscape(audio.URL+"/out/r-1.mp3"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3-audio-bytes", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAudioProxyRejectsTargets(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.AppConfig) { cfg.EverAI.AudioHosts = []string{"everai.vn"} })

	cases := map[string]int{
		"":                              http.StatusBadRequest,
		"file:///etc/passwd":            http.StatusBadRequest,
		"ftp://cdn.everai.vn/a.mp3":     http.StatusBadRequest,
		"/relative/a.mp3":               http.StatusBadRequest,
		"http://169.254.169.254/latest": http.StatusForbidden,
		"https://evil-everai.vn/a.mp3":  http.StatusForbidden,
	}
	for target, want := range cases {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/everai/audio-proxy?url="+url.QueryEscape(target), nil))
		assert.Equal(t, want, rec.Code, target)
	}
}

func TestAudioProxyAllowsSubdomains(t *testing.T) {
	ctx := context.Background()
	e := &EverAIController{AudioHosts: []string{"everai.vn"}}
	assert.True(t, e.allowedHost(ctx, "everai.vn"))
	assert.True(t, e.allowedHost(ctx, "CDN.everai.vn"))
	assert.False(t, e.allowedHost(ctx, "everai.vn.attacker.io"))
}

func TestAudioProxyRefusesInternalHostsByDefault(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Empty(t, ts.cfg.EverAI.AudioHosts)

	for _, target := range []string{
		"http://127.0.0.1:8083/out/a.mp3",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/a.mp3",
		"http://192.168.1.20/a.mp3",
		"http://[::1]/a.mp3",
		"http://[fe80::1]/a.mp3",
		"http://0.0.0.0/a.mp3",
		"http://localhost:6379/",
	} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/everai/audio-proxy?url="+url.QueryEscape(target), nil))
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}

	e := &EverAIController{}
	assert.True(t, e.allowedHost(context.Background(), "93.184.216.34"))
	assert.True(t, e.allowedHost(context.Background(), "2606:4700::1111"))
}

func allowLoopbackAudio(cfg *config.AppConfig) {
	cfg.EverAI.AudioHosts = []string{"127.0.0.1"}
}

func TestAudioProxyUnreachable(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := audio.URL
	audio.Close()
	ts := newTestServer(t, allowLoopbackAudio)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/everai/audio-proxy?url="+url.QueryEscape(deadURL+"/a.mp3"), nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
