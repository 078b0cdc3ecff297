package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"fashionstudio/models"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GenAIClientFactory builds a client bound to one caller's key.
type GenAIClientFactory func(ctx context.Context, apiKey models.ApiKey) (*genai.Client, error)

func NewGenAIClient(ctx context.Context, apiKey models.ApiKey) (*genai.Client, error) {
	if apiKey == "" {
		return nil, NewProviderError(KindAuth, providerGemini, http.StatusUnauthorized, "no api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  string(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

const (
	isolateInstruction = `Isolate the single garment or product in the image. Remove the person, hanger, hands and every background element. Keep the exact colours, fabric texture, prints and logos. Place the product centred on a flat, unlit, pure white background with soft natural shadow only under it. If no product is visible return the text NO_PRODUCT.`
	tryOnInstruction   = `The first image is a person, every following image is a garment. Dress the exact same person from the first image in the garments, keeping facial identity, body proportions, pose and placement unchanged. For clothing that is not provided keep what the person already wears. Produce a full-body commercial fashion photo with natural, soft, professional lighting. If no person is detected return the text NO_PERSON.`
	backgroundTemplate = `Replace the background of the image with: %s. Keep the person and the clothes pixel-identical, match lighting and perspective of the new scene, and keep the original aspect ratio.`
)

type StudioResult struct {
	Image            []byte `json:"-"`
	MIMEType         string `json:"mime_type"`
	Text             string `json:"text,omitempty"`
	InputTokenCount  int32  `json:"input_token_count"`
	OutputTokenCount int32  `json:"output_token_count"`
}

// StudioProcessor runs the generative image steps of the wizard.
type StudioProcessor interface {
	IsolateProduct(ctx context.Context, session models.SessionConfig, image []byte) (*StudioResult, error)
	TryOn(ctx context.Context, session models.SessionConfig, person []byte, garments [][]byte) (*StudioResult, error)
	ReplaceBackground(ctx context.Context, session models.SessionConfig, image []byte, prompt string) (*StudioResult, error)
}

type GoogleStudioProcessor struct {
	NewClient    GenAIClientFactory
	Model        string
	MaxDimension int
	Logger       zerolog.Logger
}

// prepareImage shrinks an input before it is inlined in a request.
func (p *GoogleStudioProcessor) prepareImage(data []byte) (*genai.Part, error) {
	maxSide := p.MaxDimension
	if maxSide <= 0 {
		maxSide = DefaultMaxDimension
	}
	resized, mimeType, err := ResizeToFit(data, maxSide)
	if err != nil {
		return nil, err
	}
	return genai.NewPartFromBytes(resized, mimeType), nil
}

func (p *GoogleStudioProcessor) request(session models.SessionConfig, instruction string, images ...[]byte) models.GenerationRequest {
	return models.GenerationRequest{
		Prompt:      instruction,
		InputImages: images,
		ModelID:     firstNonEmpty(session.ImageModel(), p.Model),
	}
}

func (p *GoogleStudioProcessor) generate(ctx context.Context, session models.SessionConfig, req models.GenerationRequest) (*StudioResult, error) {
	if len(req.InputImages) == 0 {
		return nil, NewProviderError(KindInvalid, providerGemini, 0, "no input image")
	}
	client, err := p.NewClient(ctx, session.APIKey())
	if err != nil {
		return nil, err
	}

	var parts []*genai.Part
	for i, data := range req.InputImages {
		part, err := p.prepareImage(data)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	model := req.ModelID
	result, err := client.Models.GenerateContent(ctx, model, []*genai.Content{{Role: "user", Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount:     1,
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, genaiError(err)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return nil, NewProviderError(KindProvider, providerGemini, http.StatusOK,
			fmt.Sprintf("content blocked: %s %s", result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage))
	}

	images, err := GetAllInlineImages(result)
	if err != nil {
		return nil, err
	}
	out := &StudioResult{Image: images[0].Data, MIMEType: images[0].MIMEType, Text: result.Text()}
	if result.UsageMetadata != nil {
		out.InputTokenCount = result.UsageMetadata.PromptTokenCount
		out.OutputTokenCount = result.UsageMetadata.CandidatesTokenCount
	}
	p.Logger.Info().
		Str("model", model).
		Int32("input_tokens", out.InputTokenCount).
		Int32("output_tokens", out.OutputTokenCount).
		Msg("studio image generated")
	return out, nil
}

func (p *GoogleStudioProcessor) IsolateProduct(ctx context.Context, session models.SessionConfig, image []byte) (*StudioResult, error) {
	result, err := p.generate(ctx, session, p.request(session, isolateInstruction, image))
	if err != nil {
		return nil, err
	}
	flattened, err := FlattenBackgroundBytes(result.Image, DefaultFlattenOptions)
	if err != nil {
		p.Logger.Warn().Err(err).Msg("background flattening skipped")
		return result, nil
	}
	result.Image, result.MIMEType = flattened, "image/png"
	return result, nil
}

func (p *GoogleStudioProcessor) TryOn(ctx context.Context, session models.SessionConfig, person []byte, garments [][]byte) (*StudioResult, error) {
	if len(garments) == 0 {
		return nil, NewProviderError(KindInvalid, providerGemini, 0, "no garment image")
	}
	return p.generate(ctx, session, p.request(session, tryOnInstruction, append([][]byte{person}, garments...)...))
}

func (p *GoogleStudioProcessor) ReplaceBackground(ctx context.Context, session models.SessionConfig, image []byte, prompt string) (*StudioResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "a bright minimalist photo studio"
	}
	return p.generate(ctx, session, p.request(session, fmt.Sprintf(backgroundTemplate, prompt), image))
}

// GetAllInlineImages collects inline images of the first usable candidate.
func GetAllInlineImages(result *genai.GenerateContentResponse) ([]*genai.Blob, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, NewProviderError(KindProvider, providerGemini, http.StatusOK, "empty response")
	}
	var images []*genai.Blob
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, rating := range candidate.SafetyRatings {
			if rating != nil && rating.Blocked {
				return nil, NewProviderError(KindProvider, providerGemini, http.StatusOK, fmt.Sprintf("blocked by safety rating %s", rating.Category))
			}
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				images = append(images, part.InlineData)
			}
		}
		if len(images) > 0 {
			return images, nil
		}
	}
	text := strings.TrimSpace(result.Text())
	if text != "" {
		return nil, NewProviderError(KindProvider, providerGemini, http.StatusOK, text)
	}
	return nil, NewProviderError(KindProvider, providerGemini, http.StatusOK, ErrNoInlineImage.Error())
}
