package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fashionstudio/config"
	"fashionstudio/models"
	"fashionstudio/services"
	"fashionstudio/test"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	e         *echo.Echo
	cfg       config.AppConfig
	enqueuer  *test.EnqueuerMock
	inspector *test.InspectorMock
}

const testKeySecret = "jobs-test-secret"

func newTestServer(t *testing.T, configure func(cfg *config.AppConfig)) *testServer {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Gateway.PublicURL = "http://gateway.test"
	cfg.Worker.KeySecret = testKeySecret
	if configure != nil {
		configure(cfg)
	}
	sessions, err := services.NewCacheSessionStore(time.Hour)
	require.NoError(t, err)

	ts := &testServer{
		cfg:       *cfg,
		enqueuer:  &test.EnqueuerMock{},
		inspector: &test.InspectorMock{},
	}
	ts.e = SetupServer(Dependencies{
		Config:    *cfg,
		Logger:    zerolog.Nop(),
		Client:    &http.Client{Timeout: 5 * time.Second},
		Sessions:  sessions,
		Jobs:      ts.enqueuer,
		Inspector: ts.inspector,
		URLs:      test.URLCacheMock{},
	})
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorOut {
	t.Helper()
	var out models.ErrorOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-42")

	rec := ts.do(req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeError(t, rec).Error)
}
