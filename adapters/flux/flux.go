// Package flux implements image generation for Flux models behind an
// OpenAI compatible images endpoint.
package flux

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

var supportedAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3"}

const (
	maxInputImages     = 1
	defaultAspectRatio = "1:1"
)

// Provider implements mediaflow.ImageProvider for Flux
type Provider struct {
	backend mediaflow.Backend
}

// New creates a Flux provider dispatching through backend
func New(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend}
}

func (p *Provider) ID() string                   { return mediaflow.ProviderFlux }
func (p *Provider) Name() string                 { return "Flux" }
func (p *Provider) Protocol() mediaflow.Protocol { return mediaflow.ProtocolOpenAI }

// Capabilities returns the accepted request shapes
func (p *Provider) Capabilities() mediaflow.ImageCapabilities {
	return mediaflow.ImageCapabilities{
		Capabilities:          []mediaflow.Capability{mediaflow.CapabilityTextToImage, mediaflow.CapabilityImageToImage},
		SupportedAspectRatios: append([]string(nil), supportedAspectRatios...),
		SupportedImageSizes:   []string{},
		MaxInputImages:        maxInputImages,
	}
}

// ValidateRequest validates the request for Flux
func (p *Provider) ValidateRequest(req *mediaflow.ImageRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if len(req.InputImages) > maxInputImages {
		return &mediaflow.ValidationError{Field: "inputImages", Message: fmt.Sprintf("Flux supports at most %d reference image", maxInputImages)}
	}
	if req.AspectRatio != "" && !slices.Contains(supportedAspectRatios, req.AspectRatio) {
		return &mediaflow.ValidationError{Field: "aspectRatio", Message: fmt.Sprintf("unsupported aspect ratio: %s", req.AspectRatio)}
	}
	return nil
}

// BuildBackendParams uses aspect_ratio instead of a pixel size
func (p *Provider) BuildBackendParams(req *mediaflow.ImageRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = defaultAspectRatio
	}
	return mediaflow.DalleGenerateParams{
		Credentials:    mediaflow.NewCredentials(cfg),
		Model:          req.Model,
		Prompt:         req.Prompt,
		InputImages:    imagedata.NormalizeAll(req.InputImages),
		AspectRatio:    aspectRatio,
		NegativePrompt: req.NegativePrompt,
	}
}

// Generate performs one images/generations round trip
func (p *Provider) Generate(ctx context.Context, req *mediaflow.ImageRequest, cfg mediaflow.ProviderConfig) (*mediaflow.ImageResult, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: mediaflow.TrimBaseURL(cfg.BaseURL) + "/v1/images/generations",
		RequestBody: map[string]interface{}{
			"model":       req.Model,
			"prompt":      mediaflow.TruncatePrompt(req.Prompt),
			"aspectRatio": req.AspectRatio,
			"inputImages": len(req.InputImages),
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

	imageData := env.ImageData
	if imageData == "" {
		// some gateways put the image inline in the revised prompt
		if salvaged, ok := imagedata.ExtractBase64Image(env.RevisedPrompt); ok {
			imageData = salvaged
		}
	}
	if imageData == "" {
		return nil, mediaflow.NewEmptyResultError("EmptyImageData", "API returned success without image data", meta, map[string]interface{}{
			"success":       env.Success,
			"imageUrl":      env.ImageURL,
			"revisedPrompt": env.RevisedPrompt,
			"hasImageData":  false,
		})
	}

	return &mediaflow.ImageResult{
		ImageData: imageData,
		Text:      env.RevisedPrompt,
		Model:     req.Model,
	}, nil
}
