package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fashionstudio/models"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const providerGeminiSpeech = "gemini-tts"

const (
	DefaultSpeechPollInterval = 2 * time.Second
	DefaultSpeechMaxAttempts  = 20
)

// SpeechProvider is a single-call synthesis backend.
type SpeechProvider interface {
	Synthesize(ctx context.Context, session models.SessionConfig, req models.SpeechRequest) (models.SpeechResult, error)
}

// SpeechFailedError is what callers see once every provider gave up.
type SpeechFailedError struct {
	Message string
	Err     error
}

func (e *SpeechFailedError) Error() string { return e.Message }
func (e *SpeechFailedError) Unwrap() error { return e.Err }

type speechCall struct {
	session models.SessionConfig
	req     models.SpeechRequest
}

// SpeechOrchestrator tries EverAI (proxied, then direct) and falls back to
// the secondary provider when EverAI cannot deliver.
type SpeechOrchestrator struct {
	EverAI    *EverAIClient
	Secondary SpeechProvider
	Clock     Clock
	Budget    PollBudget
	Logger    zerolog.Logger
}

func NewSpeechOrchestrator(everAI *EverAIClient, secondary SpeechProvider, clock Clock, logger zerolog.Logger) *SpeechOrchestrator {
	return &SpeechOrchestrator{
		EverAI:    everAI,
		Secondary: secondary,
		Clock:     clock,
		Budget:    PollBudget{Interval: DefaultSpeechPollInterval, MaxAttempts: DefaultSpeechMaxAttempts},
		Logger:    logger,
	}
}

func (o *SpeechOrchestrator) strategies() []Strategy[speechCall, models.SpeechResult] {
	return []Strategy[speechCall, models.SpeechResult]{
		{Name: providerEverAI, Run: o.primary},
		{Name: providerGeminiSpeech, Run: func(ctx context.Context, call speechCall) (models.SpeechResult, error) {
			return o.Secondary.Synthesize(ctx, call.session, call.req)
		}},
	}
}

func (o *SpeechOrchestrator) Synthesize(ctx context.Context, session models.SessionConfig, req models.SpeechRequest) (models.SpeechResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		err := NewProviderError(KindInvalid, providerEverAI, 0, "text is empty")
		return models.SpeechResult{}, &SpeechFailedError{Message: LocalizedMessage(err, session.Language()), Err: err}
	}
	result, err := FirstSuccess(o.strategies()...)(ctx, speechCall{session: session, req: req})
	if err != nil {
		o.Logger.Error().Err(err).Msg("speech synthesis failed on every provider")
		return models.SpeechResult{}, &SpeechFailedError{Message: LocalizedMessage(err, session.Language()), Err: err}
	}
	return result, nil
}

func (o *SpeechOrchestrator) primary(ctx context.Context, call speechCall) (models.SpeechResult, error) {
	job, err := o.EverAI.Submit(ctx, call.session, call.req)
	if err != nil {
		return models.SpeechResult{}, err
	}
	audioURL := job.AudioLink
	if audioURL == "" {
		audioURL, err = o.waitForAudio(ctx, call.session, job)
		if err != nil {
			return models.SpeechResult{}, err
		}
	}
	media, err := o.EverAI.Download(ctx, call.session, audioURL)
	if err != nil {
		return models.SpeechResult{}, err
	}
	mimeType := media.MIMEType
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = "audio/mpeg"
	}
	return models.SpeechResult{
		Audio:    media.Data,
		MIMEType: mimeType,
		DataURL:  DataURL(mimeType, media.Data),
		Provider: providerEverAI,
	}, nil
}

func (o *SpeechOrchestrator) waitForAudio(ctx context.Context, session models.SessionConfig, job everAIJob) (string, error) {
	if job.RequestID == "" {
		return "", NewProviderError(KindProvider, providerEverAI, http.StatusOK, "response has neither audio link nor request id")
	}
	for attempt := 1; attempt <= o.Budget.MaxAttempts; attempt++ {
		if err := o.Clock.Sleep(ctx, o.Budget.Interval); err != nil {
			return "", err
		}
		status, err := o.EverAI.Status(ctx, session, job.RequestID)
		if err != nil {
			return "", err
		}
		o.Logger.Debug().Str("provider", providerEverAI).Str("request_id", job.RequestID).
			Str("status", status.Status).Int("attempt", attempt).Msg("speech job status")
		switch status.Status {
		case everAIStatusDone:
			if status.AudioLink == "" {
				return "", NewProviderError(KindProvider, providerEverAI, http.StatusOK, "job done without audio link")
			}
			return status.AudioLink, nil
		case everAIStatusFailed:
			return "", NewProviderError(KindProvider, providerEverAI, http.StatusOK, "job failed")
		}
	}
	return "", fmt.Errorf("%s job %s: %w", providerEverAI, job.RequestID, ErrPollTimeout)
}

// GeminiSpeechProvider synthesizes with a Gemini TTS model in one call.
type GeminiSpeechProvider struct {
	NewClient GenAIClientFactory
	Model     string
	Voice     string
}

func (g *GeminiSpeechProvider) Synthesize(ctx context.Context, session models.SessionConfig, req models.SpeechRequest) (models.SpeechResult, error) {
	client, err := g.NewClient(ctx, session.APIKey())
	if err != nil {
		return models.SpeechResult{}, err
	}
	result, err := client.Models.GenerateContent(ctx, g.Model, genai.Text(req.Text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.Voice},
			},
		},
	})
	if err != nil {
		return models.SpeechResult{}, genaiError(err)
	}
	blob := firstInlineData(result, "audio/")
	if blob == nil || len(blob.Data) == 0 {
		return models.SpeechResult{}, NewProviderError(KindProvider, providerGeminiSpeech, http.StatusOK, ErrEmptyAudio.Error())
	}
	audio, mimeType := blob.Data, blob.MIMEType
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/l16") || strings.Contains(mimeType, "codec=pcm") {
		audio = WrapPCMAsWAV(blob.Data, sampleRate(mimeType), 1, 16)
		mimeType = "audio/wav"
	}
	return models.SpeechResult{
		Audio:    audio,
		MIMEType: mimeType,
		DataURL:  DataURL(mimeType, audio),
		Provider: providerGeminiSpeech,
	}, nil
}

func firstInlineData(result *genai.GenerateContentResponse, mimePrefix string) *genai.Blob {
	if result == nil {
		return nil
	}
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && strings.HasPrefix(strings.ToLower(part.InlineData.MIMEType), mimePrefix) {
				return part.InlineData
			}
		}
	}
	return nil
}

// sampleRate reads rate=N out of a mime type such as audio/L16;codec=pcm;rate=24000.
func sampleRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(key, "rate") {
			if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return 24000
}

// WrapPCMAsWAV prefixes little-endian PCM samples with a RIFF header.
func WrapPCMAsWAV(pcm []byte, rate, channels, bitsPerSample int) []byte {
	var buf bytes.Buffer
	blockAlign := channels * bitsPerSample / 8
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
