package services

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"fashionstudio/config"
	"fashionstudio/languageutil"
	"fashionstudio/models"
)

// SessionDefaults are the server-side values a SessionConfig starts from.
type SessionDefaults struct {
	KeyHeader   string
	GatewayBase string
	VideoModel  string
	ImageModel  string
	VoiceID     string
}

func DefaultsFromConfig(cfg config.AppConfig) SessionDefaults {
	return SessionDefaults{
		KeyHeader:   cfg.Gateway.KeyHeader,
		GatewayBase: cfg.Gateway.PublicURL,
		VideoModel:  cfg.Gemini.VideoModel,
		ImageModel:  cfg.Gemini.ImageModel,
		VoiceID:     cfg.EverAI.VoiceID,
	}
}

func (d SessionDefaults) New(apiKey models.ApiKey, lang models.Language) models.SessionConfig {
	return models.NewSessionConfig(apiKey, lang, d.GatewayBase).
		WithVideoModel(d.VideoModel).
		WithImageModel(d.ImageModel).
		WithVoiceID(d.VoiceID)
}

// SessionConfigFromRequest reads the caller's key and preferred language.
// The key is taken as sent; shape checks are up to the route.
func SessionConfigFromRequest(r *http.Request, d SessionDefaults) models.SessionConfig {
	key := models.ApiKey(strings.TrimSpace(r.Header.Get(d.KeyHeader)))
	return d.New(key, languageutil.Match(r.Header.Get("Accept-Language")))
}

// ScopedSessionID keeps sessions of different keys apart while the browser
// keeps using the same short id.
func ScopedSessionID(apiKey models.ApiKey, id string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8]) + "_" + id
}
