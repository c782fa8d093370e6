// Package chatimage implements image generation through chat style endpoints
// that answer with the image embedded in the message text.
package chatimage

import (
	"context"
	"fmt"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

const maxInputImages = 10

// Provider implements mediaflow.ImageProvider over chat completions or the Responses API
type Provider struct {
	backend   mediaflow.Backend
	responses bool
}

// NewChat creates a provider calling chat completions
func NewChat(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend}
}

// NewResponses creates a provider calling the Responses API
func NewResponses(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend, responses: true}
}

func (p *Provider) ID() string {
	if p.responses {
		return mediaflow.ProviderOpenAIResponsesImage
	}
	return mediaflow.ProviderOpenAIChatImage
}

func (p *Provider) Name() string {
	if p.responses {
		return "OpenAI Responses Image"
	}
	return "OpenAI Chat Image"
}

func (p *Provider) Protocol() mediaflow.Protocol {
	if p.responses {
		return mediaflow.ProtocolOpenAIResponses
	}
	return mediaflow.ProtocolOpenAI
}

// Capabilities returns the accepted request shapes. Aspect ratio and size
// are left to the prompt.
func (p *Provider) Capabilities() mediaflow.ImageCapabilities {
	return mediaflow.ImageCapabilities{
		Capabilities:                []mediaflow.Capability{mediaflow.CapabilityTextToImage, mediaflow.CapabilityImageToImage},
		SupportedAspectRatios:       []string{},
		SupportedImageSizes:         []string{},
		MaxInputImages:              maxInputImages,
		SupportsMultipleInputImages: true,
	}
}

func (p *Provider) ValidateRequest(req *mediaflow.ImageRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if len(req.InputImages) > maxInputImages {
		return &mediaflow.ValidationError{Field: "inputImages", Message: fmt.Sprintf("too many input images (at most %d)", maxInputImages)}
	}
	return nil
}

// BuildBackendParams sends the input images as message attachments
func (p *Provider) BuildBackendParams(req *mediaflow.ImageRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	var files []mediaflow.FileData
	for i, img := range imagedata.ParseAll(req.InputImages) {
		files = append(files, mediaflow.FileData{
			Data:     img.Base64,
			MimeType: img.MimeType,
			FileName: fmt.Sprintf("input-%d", i),
		})
	}

	params := mediaflow.TextParams{
		Credentials: mediaflow.NewCredentials(cfg),
		Model:       req.Model,
		Prompt:      req.Prompt,
		Files:       files,
	}
	if p.responses {
		return mediaflow.OpenAIResponsesParams{TextParams: params}
	}
	return mediaflow.OpenAIChatParams{TextParams: params}
}

func (p *Provider) requestURL(cfg mediaflow.ProviderConfig) string {
	if p.responses {
		return mediaflow.TrimBaseURL(cfg.BaseURL) + "/v1/responses"
	}
	return mediaflow.TrimBaseURL(cfg.BaseURL) + "/v1/chat/completions"
}

// Generate performs one round trip and extracts the image from the reply
func (p *Provider) Generate(ctx context.Context, req *mediaflow.ImageRequest, cfg mediaflow.ProviderConfig) (*mediaflow.ImageResult, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: p.requestURL(cfg),
		RequestBody: map[string]interface{}{
			"model":      req.Model,
			"prompt":     mediaflow.TruncatePrompt(req.Prompt),
			"hasFiles":   len(req.InputImages) > 0,
			"filesCount": len(req.InputImages),
		},
	}

	env, err := mediaflow.Call(ctx, p.backend, p.BuildBackendParams(req, cfg))
	if err != nil {
		if mediaflow.IsCancelled(err) {
			return nil, err
		}
		return nil, mediaflow.NewBackendError(nil, err, meta)
	}
	if !env.Success {
		return nil, mediaflow.NewBackendError(env, nil, meta)
	}

	imageData, ok := imagedata.ExtractBase64Image(env.Text)
	if !ok {
		return nil, mediaflow.NewEmptyResultError("EmptyImageData", "API returned success without image data", meta, map[string]interface{}{
			"success":    env.Success,
			"hasContent": env.Text != "",
		})
	}

	return &mediaflow.ImageResult{
		ImageData: imageData,
		Text:      env.Text,
		Model:     req.Model,
	}, nil
}
