package models

type SpeechRequest struct {
	Text    string  `json:"text" validate:"required,max=5000"`
	VoiceID string  `json:"voice_id,omitempty" validate:"max=100"`
	Speed   float64 `json:"speed,omitempty" validate:"omitempty,min=0.5,max=2"`
}

type SpeechResult struct {
	Audio    []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	DataURL  string `json:"-"`
	Provider string `json:"provider"`
}
