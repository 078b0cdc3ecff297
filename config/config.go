package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Port         int
	BodyLimit    string
	RateLimit    float64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GatewayConfig drives the /api/* forwarder.
type GatewayConfig struct {
	Upstream          string
	KeyHeader         string
	KeyMode           string
	Timeout           time.Duration
	DefaultRetryAfter int
	// PublicURL is how server-side flows reach this same gateway.
	PublicURL string
}

type EverAIConfig struct {
	BaseURL    string
	Token      string
	VoiceID    string
	AudioHosts []string
}

type GeminiConfig struct {
	APIKey      string
	VideoModel  string
	ImageModel  string
	SpeechModel string
	SpeechVoice string
}

type SessionConfig struct {
	Backend string
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

type SentryConfig struct {
	DSN     string
	Release string
}

type WorkerConfig struct {
	Concurrency int
	Retention   time.Duration
	// VideoSource is "sdk" to call Veo directly or "gateway" to go through /api.
	VideoSource string
	// KeySecret seals caller keys inside task payloads. Without it /jobs only
	// runs on the server key.
	KeySecret string
}

type AppConfig struct {
	Environment string
	HTTP        HTTPConfig
	Gateway     GatewayConfig
	EverAI      EverAIConfig
	Gemini      GeminiConfig
	Session     SessionConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Sentry      SentryConfig
	Worker      WorkerConfig
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

// Default is the configuration with no file and no environment applied.
func Default() (*AppConfig, error) {
	v := viper.New()
	SetDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Gateway.KeyMode != "query" && cfg.Gateway.KeyMode != "header" {
		return nil, fmt.Errorf("gateway.keymode must be query or header, got %q", cfg.Gateway.KeyMode)
	}
	return &cfg, nil
}

// SetDefaults registers every non-secret default. Secrets (gemini.apikey,
// everai.token, everai.voiceid, storage keys, sentry.dsn) stay empty.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.port", 8083)
	v.SetDefault("http.bodylimit", "25M")
	v.SetDefault("http.ratelimit", 10)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "330s")

	v.SetDefault("gateway.upstream", "https://generativelanguage.googleapis.com")
	v.SetDefault("gateway.keyheader", "X-Goog-Api-Key")
	v.SetDefault("gateway.keymode", "query")
	v.SetDefault("gateway.timeout", "300s")
	v.SetDefault("gateway.defaultretryafter", 30)
	v.SetDefault("gateway.publicurl", "http://127.0.0.1:8083")

	v.SetDefault("everai.baseurl", "https://api.everai.vn")
	v.SetDefault("everai.token", "")
	v.SetDefault("everai.voiceid", "")
	v.SetDefault("everai.audiohosts", []string{})

	v.SetDefault("gemini.apikey", "")
	v.SetDefault("gemini.videomodel", "veo-3.0-fast-generate-001")
	v.SetDefault("gemini.imagemodel", "gemini-2.5-flash-image-preview")
	v.SetDefault("gemini.speechmodel", "gemini-2.5-flash-preview-tts")
	v.SetDefault("gemini.speechvoice", "Kore")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "72h")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.accountid", "")
	v.SetDefault("storage.accesskeyid", "")
	v.SetDefault("storage.accesskeysecret", "")
	v.SetDefault("storage.bucket", "studio-assets")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.release", "fashionstudio@1.0.0")

	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.retention", "24h")
	v.SetDefault("worker.videosource", "sdk")
	v.SetDefault("worker.keysecret", "")
}
