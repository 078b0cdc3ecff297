package models

// GenerationRequest is created per user action and dropped once answered.
type GenerationRequest struct {
	Prompt      string   `json:"prompt"`
	InputImages [][]byte `json:"-"`
	ModelID     string   `json:"model_id"`
}

type OperationStatus string

const (
	OperationPending OperationStatus = "PENDING"
	OperationDone    OperationStatus = "DONE"
	OperationError   OperationStatus = "ERROR"
)

// Operation is a long-running upstream job as seen by the poller.
type Operation struct {
	ID        string          `json:"id"`
	Status    OperationStatus `json:"status"`
	ResultURI string          `json:"result_uri,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (o Operation) IsTerminal() bool {
	return o.Status == OperationDone || o.Status == OperationError
}

type VideoRequest struct {
	Prompt         string `json:"prompt" validate:"required,max=4000"`
	Image          []byte `json:"image,omitempty"`
	ImageMIMEType  string `json:"image_mime_type,omitempty" validate:"omitempty,oneof=image/jpeg image/png image/webp"`
	AspectRatio    string `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16"`
	Resolution     string `json:"resolution" validate:"omitempty,oneof=720p 1080p"`
	NegativePrompt string `json:"negative_prompt,omitempty" validate:"max=2000"`
	Model          string `json:"model,omitempty" validate:"max=100"`
}

// MediaResult is downloaded bytes plus where they came from.
type MediaResult struct {
	Data      []byte `json:"-"`
	MIMEType  string `json:"mime_type"`
	SourceURI string `json:"source_uri,omitempty"`
}
