package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"fashionstudio/models"
	"fashionstudio/services"
	"fashionstudio/test"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type videoStub struct {
	media   models.MediaResult
	err     error
	session models.SessionConfig
}

func (v *videoStub) Generate(_ context.Context, session models.SessionConfig, _ models.VideoRequest) (models.MediaResult, services.PollResult, error) {
	v.session = session
	return v.media, services.PollResult{State: services.StateDone, Attempts: 3, Operation: models.Operation{ID: "operations/abc"}}, v.err
}

type speechStub struct {
	result models.SpeechResult
	err    error
}

func (s *speechStub) Synthesize(_ context.Context, _ models.SessionConfig, _ models.SpeechRequest) (models.SpeechResult, error) {
	return s.result, s.err
}

var testSealer, _ = NewKeySealer("worker-test-secret")

func callerSession(t *testing.T, language models.Language) JobSession {
	t.Helper()
	js, err := NewJobSession(testSealer, test.TestAPIKey, language)
	require.NoError(t, err)
	return js
}

func newHandlers(storage *test.StorageMock) *Handlers {
	return &Handlers{
		Sealer:   testSealer,
		Storage:  storage,
		URLs:     test.URLCacheMock{},
		Defaults: services.SessionDefaults{GatewayBase: "http://127.0.0.1:8083", VideoModel: "veo-3.0-fast-generate-001"},
		Now:      func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) },
		Logger:   zerolog.Nop(),
	}
}

func TestGenerateVideoStoresResult(t *testing.T) {
	storage := &test.StorageMock{}
	h := newHandlers(storage)
	video := &videoStub{media: models.MediaResult{Data: []byte("mp4"), MIMEType: "video/mp4"}}
	h.Video = video

	result, err := h.GenerateVideo(context.Background(), VideoGenerationPayload{
		Session: callerSession(t, models.VI),
		Request: models.VideoRequest{Prompt: "runway walk"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.ObjectKey, "video/2025/05/01/"))
	assert.Equal(t, "https://assets.example.com/"+result.ObjectKey+"?signed=1", result.URL)
	assert.Equal(t, "video/mp4", result.MIMEType)
	assert.Equal(t, []byte("mp4"), storage.Objects[result.ObjectKey].Data)
	assert.Equal(t, models.VI, video.session.Language())
	assert.Equal(t, "veo-3.0-fast-generate-001", video.session.VideoModel())
}

func TestFallbackKeyIsUsedWhenPayloadHasNone(t *testing.T) {
	h := newHandlers(&test.StorageMock{})
	video := &videoStub{media: models.MediaResult{Data: []byte("mp4"), MIMEType: "video/mp4"}}
	h.Video = video

	_, err := h.GenerateVideo(context.Background(), VideoGenerationPayload{Request: models.VideoRequest{Prompt: "x"}})
	assert.ErrorIs(t, err, asynq.SkipRetry)

	h.FallbackKey = test.TestAPIKey
	_, err = h.GenerateVideo(context.Background(), VideoGenerationPayload{Request: models.VideoRequest{Prompt: "x"}})
	require.NoError(t, err)
	assert.Equal(t, models.ApiKey(test.TestAPIKey), video.session.APIKey())
}

func TestGenerateSpeechKeepsProvider(t *testing.T) {
	storage := &test.StorageMock{}
	h := newHandlers(storage)
	h.Speech = &speechStub{result: models.SpeechResult{Audio: []byte("RIFF"), MIMEType: "audio/wav", Provider: "gemini-tts"}}

	result, err := h.GenerateSpeech(context.Background(), SpeechGenerationPayload{
		Session: callerSession(t, ""),
		Request: models.SpeechRequest{Text: "Xin chào"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini-tts", result.Provider)
	assert.True(t, strings.HasSuffix(result.ObjectKey, ".wav"), result.ObjectKey)
	assert.Len(t, storage.Objects, 1)
}

func TestRunStudioSteps(t *testing.T) {
	storage := &test.StorageMock{}
	h := newHandlers(storage)
	studio := &test.StudioMock{Image: []byte("png")}
	h.Studio = studio
	session := callerSession(t, "")

	_, err := h.RunStudioStep(context.Background(), models.StepTryOn, StudioPayload{
		Session: session,
		Images:  [][]byte{[]byte("person"), []byte("shirt"), []byte("jeans")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, studio.Garments)

	_, err = h.RunStudioStep(context.Background(), models.StepBackground, StudioPayload{
		Session: session, Images: [][]byte{[]byte("photo")}, Prompt: "beach at noon",
	})
	require.NoError(t, err)
	assert.Equal(t, "beach at noon", studio.Prompt)

	_, err = h.RunStudioStep(context.Background(), models.StepTryOn, StudioPayload{
		Session: session, Images: [][]byte{[]byte("person")},
	})
	assert.ErrorIs(t, err, ErrTryOnNeedsGarment)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.Equal(t, []string{"tryon", "background"}, studio.Calls)
	assert.Len(t, storage.Objects, 2)
}

func TestNewStudioTask(t *testing.T) {
	task, err := NewStudioTask(models.StepIsolate, StudioPayload{Images: [][]byte{[]byte("img")}})
	require.NoError(t, err)
	assert.Equal(t, TypeStudioIsolate, task.Type())

	var payload StudioPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, [][]byte{[]byte("img")}, payload.Images)

	_, err = NewStudioTask("upscale", StudioPayload{Images: [][]byte{[]byte("img")}})
	assert.Error(t, err)

	_, err = NewStudioTask(models.StepBackground, StudioPayload{Images: [][]byte{[]byte("img")}})
	assert.ErrorIs(t, err, ErrBackgroundNeedsPrompt)

	_, err = NewStudioTask(models.StepIsolate, StudioPayload{})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestHandleTaskWithoutResultWriter(t *testing.T) {
	h := newHandlers(&test.StorageMock{})
	h.Speech = &speechStub{result: models.SpeechResult{Audio: []byte("ID3"), MIMEType: "audio/mpeg", Provider: "everai"}}

	task, err := NewSpeechGenerationTask(SpeechGenerationPayload{
		Session: callerSession(t, ""),
		Request: models.SpeechRequest{Text: "hello"},
	})
	require.NoError(t, err)
	assert.NoError(t, h.HandleSpeechGenerationTask(context.Background(), task))

	broken := asynq.NewTask(TypeSpeechGeneration, []byte("{"))
	assert.ErrorIs(t, h.HandleSpeechGenerationTask(context.Background(), broken), asynq.SkipRetry)
}

func TestFailuresAndRetries(t *testing.T) {
	h := newHandlers(&test.StorageMock{})
	session := callerSession(t, "")

	h.Speech = &speechStub{err: services.TransportError("everai", errors.New("connection reset"))}
	task, _ := NewSpeechGenerationTask(SpeechGenerationPayload{Session: session, Request: models.SpeechRequest{Text: "hi"}})
	err := h.HandleSpeechGenerationTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	h.Video = &videoStub{err: &services.OperationFailedError{Message: "prompt was blocked"}}
	task, _ = NewVideoGenerationTask(VideoGenerationPayload{Session: session, Request: models.VideoRequest{Prompt: "x"}})
	err = h.HandleVideoGenerationTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorContains(t, err, "prompt was blocked")

	h.Studio = &test.StudioMock{Err: services.NewProviderError(services.KindInvalid, "gemini", http.StatusBadRequest, "image too small")}
	task, _ = NewStudioTask(models.StepIsolate, StudioPayload{Session: session, Images: [][]byte{[]byte("img")}})
	err = h.studioHandler(models.StepIsolate)(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	var providerErr *services.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "gemini", providerErr.Provider)
	assert.Equal(t, services.KindInvalid, services.KindOf(err))
}

func TestRetriable(t *testing.T) {
	assert.True(t, Retriable(services.HTTPError("gemini", http.StatusBadGateway, nil)))
	assert.True(t, Retriable(services.ErrPollTimeout))
	assert.True(t, Retriable(services.HTTPError("gemini", http.StatusTooManyRequests, nil)))
	assert.False(t, Retriable(services.HTTPError("gemini", http.StatusForbidden, []byte("PERMISSION_DENIED"))))
	assert.False(t, Retriable(services.NewProviderError(services.KindInvalid, "gemini", 400, "bad")))
	assert.False(t, Retriable(&services.OperationFailedError{Message: "nope"}))
}
