package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fashionstudio/models"
)

const providerEverAI = "everai"

// EverAI job states as reported in result.status.
const (
	everAIStatusDone   = "done"
	everAIStatusFailed = "failed"
)

// EverAIClient speaks the EverAI TTS API over two network paths: this
// server's /api/everai proxy and the provider's own origin.
type EverAIClient struct {
	Client  *http.Client
	BaseURL string
	Token   string
	VoiceID string
}

type everAITransport struct {
	name    string
	base    string
	headers map[string]string
}

type everAISynthesisRequest struct {
	ResponseType string `json:"response_type"`
	CallbackURL  string `json:"callback_url"`
	InputText    string `json:"input_text"`
	VoiceCode    string `json:"voice_code"`
	AudioType    string `json:"audio_type"`
	Bitrate      int    `json:"bitrate"`
	SpeedRate    string `json:"speed_rate"`
}

type everAIJob struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	AudioLink string `json:"audio_link"`
}

type everAIEnvelope struct {
	Status       int       `json:"status"`
	ErrorMessage string    `json:"error_message"`
	Result       everAIJob `json:"result"`
}

func (c *EverAIClient) transports(session models.SessionConfig) []everAITransport {
	return []everAITransport{
		{name: "proxied", base: strings.TrimRight(session.GatewayBase(), "/") + "/api/everai"},
		{name: "direct", base: strings.TrimRight(c.BaseURL, "/"), headers: map[string]string{"Authorization": "Bearer " + c.Token}},
	}
}

// viaTransports runs call over the proxied path and, on transport failures
// only, over the direct path.
func viaTransports[Res any](ctx context.Context, transports []everAITransport, call func(ctx context.Context, t everAITransport) (Res, error)) (Res, error) {
	strategies := make([]Strategy[everAITransport, Res], 0, len(transports))
	for _, t := range transports {
		strategies = append(strategies, Strategy[everAITransport, Res]{
			Name:     providerEverAI + "/" + t.name,
			Run:      func(ctx context.Context, _ everAITransport) (Res, error) { return call(ctx, t) },
			Continue: IsTransportFailure,
		})
	}
	return FirstSuccess(strategies...)(ctx, everAITransport{})
}

func (c *EverAIClient) voice(session models.SessionConfig, req models.SpeechRequest) string {
	return firstNonEmpty(req.VoiceID, session.VoiceID(), c.VoiceID)
}

func (c *EverAIClient) envelope(ctx context.Context, t everAITransport, method, target string, body any) (everAIJob, error) {
	env, err := doJSON[everAIEnvelope](ctx, c.Client, providerEverAI, method, target, body, t.headers)
	if err != nil {
		return everAIJob{}, err
	}
	if env.Status != 1 {
		message := env.ErrorMessage
		if message == "" {
			message = fmt.Sprintf("request rejected with status %d", env.Status)
		}
		return everAIJob{}, NewProviderError(KindProvider, providerEverAI, http.StatusOK, message)
	}
	return env.Result, nil
}

// Submit starts a synthesis job.
func (c *EverAIClient) Submit(ctx context.Context, session models.SessionConfig, req models.SpeechRequest) (everAIJob, error) {
	voice := c.voice(session, req)
	if voice == "" {
		return everAIJob{}, NewProviderError(KindInvalid, providerEverAI, 0, "no voice configured")
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1
	}
	body := everAISynthesisRequest{
		ResponseType: "indirect",
		InputText:    req.Text,
		VoiceCode:    voice,
		AudioType:    "mp3",
		Bitrate:      128,
		SpeedRate:    strconv.FormatFloat(speed, 'f', 1, 64),
	}
	return viaTransports(ctx, c.transports(session), func(ctx context.Context, t everAITransport) (everAIJob, error) {
		return c.envelope(ctx, t, http.MethodPost, t.base+"/v1/tts", body)
	})
}

// Status reads a job's state.
func (c *EverAIClient) Status(ctx context.Context, session models.SessionConfig, requestID string) (everAIJob, error) {
	return viaTransports(ctx, c.transports(session), func(ctx context.Context, t everAITransport) (everAIJob, error) {
		return c.envelope(ctx, t, http.MethodGet, t.base+"/v1/tts/"+url.PathEscape(requestID), nil)
	})
}

// Download fetches the finished audio, first through the audio proxy then
// straight from the media host.
func (c *EverAIClient) Download(ctx context.Context, session models.SessionConfig, audioURL string) (models.MediaResult, error) {
	type download struct{}
	fetch := func(target string) func(ctx context.Context, _ download) (models.MediaResult, error) {
		return func(ctx context.Context, _ download) (models.MediaResult, error) {
			data, mimeType, err := ReadFileFromUrl(ctx, c.Client, providerEverAI, target, nil)
			if err != nil {
				return models.MediaResult{}, err
			}
			if len(data) == 0 {
				return models.MediaResult{}, NewProviderError(KindProvider, providerEverAI, http.StatusOK, ErrEmptyAudio.Error())
			}
			return models.MediaResult{Data: data, MIMEType: mimeType, SourceURI: audioURL}, nil
		}
	}
	proxied := strings.TrimRight(session.GatewayBase(), "/") + "/api/everai/audio-proxy?url=" + url.QueryEscape(audioURL)
	return FirstSuccess(
		Strategy[download, models.MediaResult]{Name: "audio-proxy", Run: fetch(proxied)},
		Strategy[download, models.MediaResult]{Name: "audio-direct", Run: fetch(audioURL)},
	)(ctx, download{})
}
