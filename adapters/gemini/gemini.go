// Package gemini implements image generation over the Google Gemini protocol.
package gemini

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

var (
	supportedAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3", "5:4", "4:5", "21:9"}
	supportedImageSizes   = []string{"1K", "2K", "4K"}
)

const (
	maxInputImages     = 10
	defaultAspectRatio = "1:1"
)

// Provider implements mediaflow.ImageProvider for Gemini image models
type Provider struct {
	backend mediaflow.Backend
}

// New creates a Gemini provider dispatching through backend
func New(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend}
}

func (p *Provider) ID() string                   { return mediaflow.ProviderGemini }
func (p *Provider) Name() string                 { return "Gemini" }
func (p *Provider) Protocol() mediaflow.Protocol { return mediaflow.ProtocolGoogle }

// Capabilities returns the accepted request shapes
func (p *Provider) Capabilities() mediaflow.ImageCapabilities {
	return mediaflow.ImageCapabilities{
		Capabilities:                []mediaflow.Capability{mediaflow.CapabilityTextToImage, mediaflow.CapabilityImageToImage},
		SupportedAspectRatios:       append([]string(nil), supportedAspectRatios...),
		SupportedImageSizes:         append([]string(nil), supportedImageSizes...),
		MaxInputImages:              maxInputImages,
		SupportsMultipleInputImages: true,
	}
}

// ValidateRequest validates the request for Gemini
func (p *Provider) ValidateRequest(req *mediaflow.ImageRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if req.AspectRatio != "" && !slices.Contains(supportedAspectRatios, req.AspectRatio) {
		return &mediaflow.ValidationError{Field: "aspectRatio", Message: fmt.Sprintf("unsupported aspect ratio: %s", req.AspectRatio)}
	}
	if req.ImageSize != "" && !slices.Contains(supportedImageSizes, req.ImageSize) {
		return &mediaflow.ValidationError{Field: "imageSize", Message: fmt.Sprintf("unsupported image size: %s", req.ImageSize)}
	}
	if len(req.InputImages) > maxInputImages {
		return &mediaflow.ValidationError{Field: "inputImages", Message: fmt.Sprintf("too many input images (at most %d)", maxInputImages)}
	}
	return nil
}

// BuildBackendParams targets the v1beta API root
func (p *Provider) BuildBackendParams(req *mediaflow.ImageRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	creds := mediaflow.NewCredentials(cfg)
	creds.BaseURL += "/v1beta"

	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = defaultAspectRatio
	}

	return mediaflow.GeminiGenerateParams{
		Credentials: creds,
		Model:       req.Model,
		Prompt:      req.Prompt,
		InputImages: imagedata.ParseAll(req.InputImages),
		AspectRatio: aspectRatio,
		ImageSize:   req.ImageSize,
	}
}

// Generate performs one generateContent round trip
func (p *Provider) Generate(ctx context.Context, req *mediaflow.ImageRequest, cfg mediaflow.ProviderConfig) (*mediaflow.ImageResult, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/v1beta/models/%s:generateContent", mediaflow.TrimBaseURL(cfg.BaseURL), req.Model),
		RequestBody: map[string]interface{}{
			"model":       req.Model,
			"prompt":      mediaflow.TruncatePrompt(req.Prompt),
			"aspectRatio": req.AspectRatio,
			"imageSize":   req.ImageSize,
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
		if salvaged, ok := imagedata.ExtractBase64Image(env.Text); ok {
			imageData = salvaged
		}
	}
	if imageData == "" {
		return nil, mediaflow.NewEmptyResultError("EmptyImageData", "API returned success without image data", meta, map[string]interface{}{
			"success":      env.Success,
			"text":         env.Text,
			"hasImageData": false,
		})
	}

	return &mediaflow.ImageResult{
		ImageData: imageData,
		Text:      env.Text,
		Model:     req.Model,
	}, nil
}
