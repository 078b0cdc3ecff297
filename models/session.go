package models

import "time"

// DefaultSessionID mirrors the single fixed key the browser wizard stores its state under.
const DefaultSessionID = "current"

// SessionConfig is passed by value to every service call. Fields are only
// reachable through getters; With* methods return modified copies.
type SessionConfig struct {
	apiKey      ApiKey
	language    Language
	videoModel  string
	imageModel  string
	voiceID     string
	gatewayBase string
}

func NewSessionConfig(apiKey ApiKey, lang Language, gatewayBase string) SessionConfig {
	if lang == "" {
		lang = EN
	}
	return SessionConfig{apiKey: apiKey, language: lang, gatewayBase: gatewayBase}
}

func (s SessionConfig) APIKey() ApiKey      { return s.apiKey }
func (s SessionConfig) Language() Language  { return s.language }
func (s SessionConfig) VideoModel() string  { return s.videoModel }
func (s SessionConfig) ImageModel() string  { return s.imageModel }
func (s SessionConfig) VoiceID() string     { return s.voiceID }
func (s SessionConfig) GatewayBase() string { return s.gatewayBase }
func (s SessionConfig) HasKey() bool        { return s.apiKey != "" }

func (s SessionConfig) WithAPIKey(key ApiKey) SessionConfig {
	s.apiKey = key
	return s
}

func (s SessionConfig) WithLanguage(lang Language) SessionConfig {
	s.language = lang
	return s
}

func (s SessionConfig) WithVideoModel(model string) SessionConfig {
	s.videoModel = model
	return s
}

func (s SessionConfig) WithImageModel(model string) SessionConfig {
	s.imageModel = model
	return s
}

func (s SessionConfig) WithVoiceID(voiceID string) SessionConfig {
	s.voiceID = voiceID
	return s
}

// StudioSession is the persisted wizard state. Images are kept as data URLs
// or storage object keys, whatever the client sent.
type StudioSession struct {
	ID              string            `json:"id"`
	ProductImage    string            `json:"product_image,omitempty"`
	IsolatedImage   string            `json:"isolated_image,omitempty"`
	TryOnImage      string            `json:"try_on_image,omitempty"`
	BackgroundImage string            `json:"background_image,omitempty"`
	VideoURI        string            `json:"video_uri,omitempty"`
	NarrationURI    string            `json:"narration_uri,omitempty"`
	ActiveStep      string            `json:"active_step,omitempty"`
	Prompts         map[string]string `json:"prompts,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type SaveSessionIn struct {
	ProductImage    string            `json:"product_image" validate:"max=20000000"`
	IsolatedImage   string            `json:"isolated_image" validate:"max=20000000"`
	TryOnImage      string            `json:"try_on_image" validate:"max=20000000"`
	BackgroundImage string            `json:"background_image" validate:"max=20000000"`
	VideoURI        string            `json:"video_uri" validate:"max=4096"`
	NarrationURI    string            `json:"narration_uri" validate:"max=4096"`
	ActiveStep      string            `json:"active_step" validate:"omitempty,oneof=upload isolate tryon background video"`
	Prompts         map[string]string `json:"prompts" validate:"max=20"`
}
