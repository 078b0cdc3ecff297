package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fashionstudio/models"
	"fashionstudio/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const QueueGenerate = "generate"

const (
	TypeVideoGeneration  = "generate:video"
	TypeSpeechGeneration = "generate:speech"
	TypeStudioIsolate    = "studio:isolate"
	TypeStudioTryOn      = "studio:tryon"
	TypeStudioBackground = "studio:background"
)

const (
	maxRetry         = 2
	defaultRetention = 24 * time.Hour
)

// JobSession is the part of a SessionConfig that travels with a task. The
// caller's key is only ever stored sealed; an empty SealedKey means the
// worker's own key is used.
type JobSession struct {
	SealedKey []byte          `json:"sealed_key,omitempty"`
	Language  models.Language `json:"language"`
}

// NewJobSession seals key when one is given.
func NewJobSession(sealer *KeySealer, key models.ApiKey, language models.Language) (JobSession, error) {
	js := JobSession{Language: language}
	if key == "" {
		return js, nil
	}
	if sealer == nil {
		return js, ErrNoKeySecret
	}
	sealed, err := sealer.Seal(key)
	if err != nil {
		return js, err
	}
	js.SealedKey = sealed
	return js, nil
}

type VideoGenerationPayload struct {
	Session JobSession          `json:"session"`
	Request models.VideoRequest `json:"request"`
}

type SpeechGenerationPayload struct {
	Session JobSession           `json:"session"`
	Request models.SpeechRequest `json:"request"`
}

type StudioPayload struct {
	Session JobSession `json:"session"`
	Images  [][]byte   `json:"images"`
	Prompt  string     `json:"prompt,omitempty"`
}

// EnqueueOptions are shared by every task this package creates. A zero
// retention keeps results for a day.
func EnqueueOptions(retention time.Duration) []asynq.Option {
	if retention <= 0 {
		retention = defaultRetention
	}
	return []asynq.Option{
		asynq.Queue(QueueGenerate),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(retention),
	}
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func NewVideoGenerationTask(payload VideoGenerationPayload) (*asynq.Task, error) {
	return newTask(TypeVideoGeneration, payload)
}

func NewSpeechGenerationTask(payload SpeechGenerationPayload) (*asynq.Task, error) {
	return newTask(TypeSpeechGeneration, payload)
}

func NewStudioTask(step models.StudioStep, payload StudioPayload) (*asynq.Task, error) {
	taskType, ok := StudioTaskType(step)
	if !ok {
		return nil, fmt.Errorf("unknown studio step %q", step)
	}
	if err := payload.check(step); err != nil {
		return nil, err
	}
	return newTask(taskType, payload)
}

func StudioTaskType(step models.StudioStep) (string, bool) {
	switch step {
	case models.StepIsolate:
		return TypeStudioIsolate, true
	case models.StepTryOn:
		return TypeStudioTryOn, true
	case models.StepBackground:
		return TypeStudioBackground, true
	}
	return "", false
}

var (
	ErrNoImages              = errors.New("at least one image is required")
	ErrTryOnNeedsGarment     = errors.New("try-on needs a person image and at least one garment")
	ErrBackgroundNeedsPrompt = errors.New("background replacement needs a prompt")
)

func (p StudioPayload) check(step models.StudioStep) error {
	switch {
	case len(p.Images) == 0:
		return ErrNoImages
	case step == models.StepTryOn && len(p.Images) < 2:
		return ErrTryOnNeedsGarment
	case step == models.StepBackground && p.Prompt == "":
		return ErrBackgroundNeedsPrompt
	}
	return nil
}

type VideoGenerator interface {
	Generate(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (models.MediaResult, services.PollResult, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, session models.SessionConfig, req models.SpeechRequest) (models.SpeechResult, error)
}

type ReadURLProvider interface {
	GetReadURL(ctx context.Context, objectKey string) (string, error)
}

// Handlers runs the generation flows off-request and stores what they produce.
type Handlers struct {
	Video       VideoGenerator
	Speech      SpeechSynthesizer
	Studio      services.StudioProcessor
	Storage     services.AssetStorage
	URLs        ReadURLProvider
	Defaults    services.SessionDefaults
	FallbackKey models.ApiKey
	Sealer      *KeySealer
	Now         func() time.Time
	Logger      zerolog.Logger
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeVideoGeneration, h.HandleVideoGenerationTask)
	mux.HandleFunc(TypeSpeechGeneration, h.HandleSpeechGenerationTask)
	mux.HandleFunc(TypeStudioIsolate, h.studioHandler(models.StepIsolate))
	mux.HandleFunc(TypeStudioTryOn, h.studioHandler(models.StepTryOn))
	mux.HandleFunc(TypeStudioBackground, h.studioHandler(models.StepBackground))
}

func (h *Handlers) session(js JobSession) (models.SessionConfig, error) {
	key := h.FallbackKey
	if len(js.SealedKey) > 0 {
		if h.Sealer == nil {
			return models.SessionConfig{}, fmt.Errorf("%w: %w", asynq.SkipRetry, ErrNoKeySecret)
		}
		opened, err := h.Sealer.Open(js.SealedKey)
		if err != nil {
			return models.SessionConfig{}, fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		key = opened
	}
	if err := key.Validate(); err != nil {
		return models.SessionConfig{}, fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	return h.Defaults.New(key, js.Language), nil
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func decodePayload[T any](t *asynq.Task) (T, error) {
	var payload T
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("%w: json.Unmarshal failed: %w", asynq.SkipRetry, err)
	}
	return payload, nil
}

func (h *Handlers) HandleVideoGenerationTask(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload[VideoGenerationPayload](t)
	if err != nil {
		return err
	}
	result, err := h.GenerateVideo(ctx, payload)
	return h.finish(t, result, err)
}

func (h *Handlers) GenerateVideo(ctx context.Context, payload VideoGenerationPayload) (models.AssetResult, error) {
	session, err := h.session(payload.Session)
	if err != nil {
		return models.AssetResult{}, err
	}
	media, poll, err := h.Video.Generate(ctx, session, payload.Request)
	if err != nil {
		return models.AssetResult{}, err
	}
	h.Logger.Info().Str("op", poll.Operation.ID).Int("attempt", poll.Attempts).Msg("video ready")
	return h.store(ctx, "video", media.Data, media.MIMEType, "veo")
}

func (h *Handlers) HandleSpeechGenerationTask(ctx context.Context, t *asynq.Task) error {
	payload, err := decodePayload[SpeechGenerationPayload](t)
	if err != nil {
		return err
	}
	result, err := h.GenerateSpeech(ctx, payload)
	return h.finish(t, result, err)
}

func (h *Handlers) GenerateSpeech(ctx context.Context, payload SpeechGenerationPayload) (models.AssetResult, error) {
	session, err := h.session(payload.Session)
	if err != nil {
		return models.AssetResult{}, err
	}
	speech, err := h.Speech.Synthesize(ctx, session, payload.Request)
	if err != nil {
		return models.AssetResult{}, err
	}
	return h.store(ctx, "speech", speech.Audio, speech.MIMEType, speech.Provider)
}

func (h *Handlers) studioHandler(step models.StudioStep) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodePayload[StudioPayload](t)
		if err != nil {
			return err
		}
		result, err := h.RunStudioStep(ctx, step, payload)
		return h.finish(t, result, err)
	}
}

func (h *Handlers) RunStudioStep(ctx context.Context, step models.StudioStep, payload StudioPayload) (models.AssetResult, error) {
	if err := payload.check(step); err != nil {
		return models.AssetResult{}, fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	session, err := h.session(payload.Session)
	if err != nil {
		return models.AssetResult{}, err
	}

	var result *services.StudioResult
	switch step {
	case models.StepIsolate:
		result, err = h.Studio.IsolateProduct(ctx, session, payload.Images[0])
	case models.StepTryOn:
		result, err = h.Studio.TryOn(ctx, session, payload.Images[0], payload.Images[1:])
	case models.StepBackground:
		result, err = h.Studio.ReplaceBackground(ctx, session, payload.Images[0], payload.Prompt)
	default:
		return models.AssetResult{}, fmt.Errorf("%w: unknown studio step %q", asynq.SkipRetry, step)
	}
	if err != nil {
		return models.AssetResult{}, err
	}
	h.Logger.Info().Str("step", string(step)).
		Int32("input_tokens", result.InputTokenCount).
		Int32("output_tokens", result.OutputTokenCount).
		Msg("studio step done")
	return h.store(ctx, "images", result.Image, result.MIMEType, "gemini")
}

func (h *Handlers) store(ctx context.Context, kind string, data []byte, mimeType, provider string) (models.AssetResult, error) {
	key := services.NewObjectKey(kind, mimeType, h.now())
	if err := h.Storage.Upload(ctx, key, data, mimeType); err != nil {
		return models.AssetResult{}, err
	}
	url, err := h.URLs.GetReadURL(ctx, key)
	if err != nil {
		return models.AssetResult{}, err
	}
	return models.AssetResult{ObjectKey: key, URL: url, MIMEType: mimeType, Provider: provider}, nil
}

// finish writes the task result, or decides whether a failure is worth a retry.
func (h *Handlers) finish(t *asynq.Task, result models.AssetResult, err error) error {
	if err != nil {
		h.Logger.Error().Err(err).Str("task", t.Type()).Msg("task failed")
		sentry.CaptureException(fmt.Errorf("[%s] %w", t.Type(), err))
		if !Retriable(err) && !errors.Is(err, asynq.SkipRetry) {
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if w := t.ResultWriter(); w != nil {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write task result: %w", err)
		}
	}
	return nil
}

// Retriable reports whether another run could succeed. Bad keys, bad input
// and explicit provider verdicts will fail the same way again.
func Retriable(err error) bool {
	if services.IsOperationFailure(err) {
		return false
	}
	switch services.KindOf(err) {
	case services.KindAuth, services.KindInvalid, services.KindProvider:
		return false
	}
	return true
}
