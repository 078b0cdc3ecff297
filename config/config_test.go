package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsDecode(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.Gateway.Upstream)
	assert.Equal(t, "query", cfg.Gateway.KeyMode)
	assert.Equal(t, 300*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 72*time.Hour, cfg.Session.TTL)
	assert.Empty(t, cfg.EverAI.Token)
	assert.Empty(t, cfg.Gemini.APIKey)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STUDIO_GATEWAY_KEYMODE", "header")
	t.Setenv("STUDIO_EVERAI_TOKEN", "secret-token")
	t.Setenv("STUDIO_EVERAI_AUDIOHOSTS", "cdn.everai.vn,media.everai.vn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "header", cfg.Gateway.KeyMode)
	assert.Equal(t, "secret-token", cfg.EverAI.Token)
	assert.Equal(t, []string{"cdn.everai.vn", "media.everai.vn"}, cfg.EverAI.AudioHosts)
}

func TestInvalidKeyMode(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("gateway.keymode", "cookie")

	_, err := decode(v)
	assert.Error(t, err)
}
