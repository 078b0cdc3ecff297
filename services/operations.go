package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fashionstudio/models"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// OperationSource starts video jobs and reports on them.
type OperationSource interface {
	Submit(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (models.Operation, error)
	Get(ctx context.Context, session models.SessionConfig, id string) (models.Operation, error)
}

// GatewayOperationSource talks to the Gemini REST API through this server's own /api gateway,
// the same path the browser uses.
type GatewayOperationSource struct {
	Client    *http.Client
	KeyHeader string
	Model     string
}

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoParameters struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type predictLongRunningRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type operationPayload struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

func (p operationPayload) toOperation() models.Operation {
	op := models.Operation{ID: p.Name, Status: models.OperationPending}
	switch {
	case p.Error != nil:
		op.Status = models.OperationError
		op.Error = p.Error.Message
		if op.Error == "" {
			op.Error = fmt.Sprintf("operation failed with code %d", p.Error.Code)
		}
	case p.Done:
		op.Status = models.OperationDone
		if p.Response == nil {
			break
		}
		result := p.Response.GenerateVideoResponse
		if len(result.GeneratedSamples) > 0 {
			op.ResultURI = result.GeneratedSamples[0].Video.URI
		}
		if op.ResultURI == "" && len(result.RaiMediaFilteredReasons) > 0 {
			op.Error = strings.Join(result.RaiMediaFilteredReasons, "; ")
		}
	}
	return op
}

func (s *GatewayOperationSource) apiBase(session models.SessionConfig) string {
	return strings.TrimRight(session.GatewayBase(), "/") + "/api/v1beta/"
}

func (s *GatewayOperationSource) headers(session models.SessionConfig) map[string]string {
	return map[string]string{s.KeyHeader: string(session.APIKey())}
}

func (s *GatewayOperationSource) Submit(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (models.Operation, error) {
	model := firstNonEmpty(req.Model, session.VideoModel(), s.Model)
	instance := veoInstance{Prompt: req.Prompt}
	if len(req.Image) > 0 {
		instance.Image = &veoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image),
			MimeType:           firstNonEmpty(req.ImageMIMEType, http.DetectContentType(req.Image)),
		}
	}
	body := predictLongRunningRequest{
		Instances: []veoInstance{instance},
		Parameters: veoParameters{
			AspectRatio:    req.AspectRatio,
			Resolution:     req.Resolution,
			NegativePrompt: req.NegativePrompt,
		},
	}
	url := s.apiBase(session) + "models/" + model + ":predictLongRunning"
	payload, err := doJSON[operationPayload](ctx, s.Client, providerGemini, http.MethodPost, url, body, s.headers(session))
	if err != nil {
		return models.Operation{}, err
	}
	if payload.Name == "" {
		return models.Operation{}, NewProviderError(KindProvider, providerGemini, http.StatusOK, "submission returned no operation name")
	}
	return payload.toOperation(), nil
}

func (s *GatewayOperationSource) Get(ctx context.Context, session models.SessionConfig, id string) (models.Operation, error) {
	if id == "" || strings.Contains(id, "..") || strings.Contains(id, "://") {
		return models.Operation{}, NewProviderError(KindInvalid, providerGemini, 0, "invalid operation id")
	}
	payload, err := doJSON[operationPayload](ctx, s.Client, providerGemini, http.MethodGet, s.apiBase(session)+id, nil, s.headers(session))
	if err != nil {
		return models.Operation{}, err
	}
	if payload.Name == "" {
		payload.Name = id
	}
	return payload.toOperation(), nil
}

// GenAIOperationSource uses the genai SDK directly. The worker uses it when
// it runs jobs with the server-held key.
type GenAIOperationSource struct {
	NewClient GenAIClientFactory
	Model     string
}

func (s *GenAIOperationSource) Submit(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (models.Operation, error) {
	client, err := s.NewClient(ctx, session.APIKey())
	if err != nil {
		return models.Operation{}, err
	}
	var image *genai.Image
	if len(req.Image) > 0 {
		image = &genai.Image{
			ImageBytes: req.Image,
			MIMEType:   firstNonEmpty(req.ImageMIMEType, http.DetectContentType(req.Image)),
		}
	}
	model := firstNonEmpty(req.Model, session.VideoModel(), s.Model)
	op, err := client.Models.GenerateVideos(ctx, model, req.Prompt, image, &genai.GenerateVideosConfig{
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		return models.Operation{}, genaiError(err)
	}
	return fromGenAIOperation(op), nil
}

func (s *GenAIOperationSource) Get(ctx context.Context, session models.SessionConfig, id string) (models.Operation, error) {
	client, err := s.NewClient(ctx, session.APIKey())
	if err != nil {
		return models.Operation{}, err
	}
	op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: id}, nil)
	if err != nil {
		return models.Operation{}, genaiError(err)
	}
	if op.Name == "" {
		op.Name = id
	}
	return fromGenAIOperation(op), nil
}

func fromGenAIOperation(op *genai.GenerateVideosOperation) models.Operation {
	result := models.Operation{ID: op.Name, Status: models.OperationPending}
	if len(op.Error) > 0 {
		result.Status = models.OperationError
		if message, ok := op.Error["message"].(string); ok && message != "" {
			result.Error = message
		} else {
			result.Error = fmt.Sprintf("%v", op.Error)
		}
		return result
	}
	if !op.Done {
		return result
	}
	result.Status = models.OperationDone
	if op.Response == nil {
		return result
	}
	for _, generated := range op.Response.GeneratedVideos {
		if generated != nil && generated.Video != nil && generated.Video.URI != "" {
			result.ResultURI = generated.Video.URI
			break
		}
	}
	if result.ResultURI == "" && len(op.Response.RAIMediaFilteredReasons) > 0 {
		result.Error = strings.Join(op.Response.RAIMediaFilteredReasons, "; ")
	}
	return result
}

// genaiError maps SDK errors onto the same taxonomy as REST answers.
func genaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Kind:     Classify(apiErr.Code, []byte(apiErr.Status+" "+apiErr.Message)),
			Provider: providerGemini,
			Status:   apiErr.Code,
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	return TransportError(providerGemini, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
