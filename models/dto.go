package models

type StudioStep string

const (
	StepIsolate    StudioStep = "isolate"
	StepTryOn      StudioStep = "tryon"
	StepBackground StudioStep = "background"
)

type StudioJobIn struct {
	Images [][]byte `json:"images" validate:"required,min=1,max=4"`
	Prompt string   `json:"prompt" validate:"max=4000"`
}

type JobCreatedOut struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
	Type  string `json:"type"`
}

type JobStatusOut struct {
	ID        string `json:"id"`
	Queue     string `json:"queue"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Retried   int    `json:"retried"`
	LastError string `json:"last_error,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// AssetResult is written as the asynq task result once a job uploaded its output.
type AssetResult struct {
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
	MIMEType  string `json:"mime_type"`
	Provider  string `json:"provider,omitempty"`
}

type ErrorOut struct {
	Error           string `json:"error"`
	Kind            string `json:"kind,omitempty"`
	ReopenKeyDialog bool   `json:"reopen_key_dialog,omitempty"`
}

// RateLimitedOut replaces an upstream 429 body.
type RateLimitedOut struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}
