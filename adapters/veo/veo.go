// Package veo implements video generation for Google Veo models served
// behind an OpenAI compatible gateway.
package veo

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

var (
	supportedAspectRatios = []string{"16:9", "9:16"}
	supportedDurations    = []int{4, 6, 8}
)

const (
	maxInputImages         = 2
	maxReferenceImages     = 3
	interpolationDuration  = 8
	referenceImageDuration = 8
)

// Provider implements mediaflow.VideoProvider for Veo
type Provider struct {
	backend mediaflow.Backend
}

// New creates a Veo provider dispatching through backend
func New(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend}
}

func (p *Provider) ID() string                   { return mediaflow.ProviderVeo }
func (p *Provider) Name() string                 { return "Veo" }
func (p *Provider) Protocol() mediaflow.Protocol { return mediaflow.ProtocolOpenAI }

// Capabilities returns the accepted request shapes. Veo takes aspect ratios
// instead of pixel sizes.
func (p *Provider) Capabilities() mediaflow.VideoCapabilities {
	return mediaflow.VideoCapabilities{
		Capabilities:          []mediaflow.Capability{mediaflow.CapabilityTextToVideo, mediaflow.CapabilityImageToVideo},
		SupportedSizes:        []string{},
		SupportedAspectRatios: append([]string(nil), supportedAspectRatios...),
		SupportedDurations:    append([]int(nil), supportedDurations...),
		MaxInputImages:        maxInputImages,
		SupportsInputImage:    true,
	}
}

// ValidateRequest validates the request for Veo.
// Two images select first/last frame interpolation, which runs for exactly
// 8 seconds and cannot be combined with reference images. Reference images
// are exclusive with input images, also force 8 seconds, and are not
// available on fast model variants.
func (p *Provider) ValidateRequest(req *mediaflow.VideoRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if len(req.Images) > maxInputImages {
		return &mediaflow.ValidationError{Field: "images", Message: fmt.Sprintf("Veo supports at most %d input images", maxInputImages)}
	}
	if req.AspectRatio != "" && !slices.Contains(supportedAspectRatios, req.AspectRatio) {
		return &mediaflow.ValidationError{Field: "aspectRatio", Message: fmt.Sprintf("unsupported aspect ratio: %s", req.AspectRatio)}
	}
	if req.Duration != 0 && !slices.Contains(supportedDurations, req.Duration) {
		return &mediaflow.ValidationError{Field: "duration", Message: fmt.Sprintf("unsupported video duration: %d", req.Duration)}
	}

	var refs []mediaflow.ReferenceImage
	if req.Metadata != nil {
		refs = req.Metadata.ReferenceImages
	}

	if len(req.Images) == 2 {
		if req.Duration != 0 && req.Duration != interpolationDuration {
			return &mediaflow.ValidationError{Field: "duration", Message: "frame interpolation requires a duration of 8 seconds"}
		}
		if len(refs) > 0 {
			return &mediaflow.ValidationError{Field: "referenceImages", Message: "frame interpolation cannot be combined with reference images"}
		}
	}

	if len(refs) > 0 {
		if len(req.Images) > 0 {
			return &mediaflow.ValidationError{Field: "referenceImages", Message: "reference images cannot be combined with images"}
		}
		if req.Duration != 0 && req.Duration != referenceImageDuration {
			return &mediaflow.ValidationError{Field: "duration", Message: "reference images require a duration of 8 seconds"}
		}
		if len(refs) > maxReferenceImages {
			return &mediaflow.ValidationError{Field: "referenceImages", Message: fmt.Sprintf("at most %d reference images are allowed", maxReferenceImages)}
		}
		if strings.Contains(req.Model, "fast") {
			return &mediaflow.ValidationError{Field: "model", Message: "fast models do not support reference images"}
		}
	}
	return nil
}

// BuildBackendParams converts the request to Veo's create parameters
func (p *Provider) BuildBackendParams(req *mediaflow.VideoRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	params := mediaflow.VeoCreateParams{
		Credentials: mediaflow.NewCredentials(cfg),
		Model:       req.Model,
		Prompt:      req.Prompt,
		Images:      imagedata.NormalizeAll(req.Images),
	}

	md := mediaflow.VeoMetadata{
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.Duration,
	}
	if req.Metadata != nil {
		md.NegativePrompt = req.Metadata.NegativePrompt
		md.PersonGeneration = req.Metadata.PersonGeneration
		for _, ref := range req.Metadata.ReferenceImages {
			img := imagedata.Normalize(ref.Image.BytesBase64Encoded)
			mime := ref.Image.MimeType
			if mime == "" {
				mime = img.MimeType
			}
			refType := ref.ReferenceType
			if refType == "" {
				refType = "asset"
			}
			md.ReferenceImages = append(md.ReferenceImages, mediaflow.ReferenceImage{
				Image:         mediaflow.ReferenceImageData{BytesBase64Encoded: img.Base64, MimeType: mime},
				ReferenceType: refType,
			})
		}
	}
	if md.AspectRatio != "" || md.DurationSeconds != 0 || md.NegativePrompt != "" ||
		md.PersonGeneration != "" || len(md.ReferenceImages) > 0 {
		params.Metadata = &md
	}
	return params
}

// CreateTask creates a remote generation task
func (p *Provider) CreateTask(ctx context.Context, req *mediaflow.VideoRequest, cfg mediaflow.ProviderConfig) (*mediaflow.VideoTask, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	refs := 0
	if req.Metadata != nil {
		refs = len(req.Metadata.ReferenceImages)
	}
	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: mediaflow.TrimBaseURL(cfg.BaseURL) + "/v1/videos",
		RequestBody: map[string]interface{}{
			"model":           req.Model,
			"prompt":          mediaflow.TruncatePrompt(req.Prompt),
			"images":          len(req.Images),
			"durationSeconds": req.Duration,
			"aspectRatio":     req.AspectRatio,
			"referenceImages": refs,
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

	return &mediaflow.VideoTask{
		TaskID:   env.TaskID,
		Stage:    mediaflow.NormalizeStage(env.Status),
		Progress: env.Progress,
	}, nil
}

// GetTaskStatus retrieves the task stage. Veo reports "failure" for failed tasks.
func (p *Provider) GetTaskStatus(ctx context.Context, taskID string, cfg mediaflow.ProviderConfig) (*mediaflow.VideoTask, error) {
	meta := mediaflow.RequestMeta{
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/v1/videos/%s", mediaflow.TrimBaseURL(cfg.BaseURL), taskID),
	}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.VeoStatusParams{
		Credentials: mediaflow.NewCredentials(cfg),
		TaskID:      taskID,
	})
	if err != nil {
		if mediaflow.IsCancelled(err) {
			return nil, err
		}
		return nil, mediaflow.NewBackendError(nil, err, meta)
	}
	if !env.Success {
		return nil, mediaflow.NewBackendError(env, nil, meta)
	}

	return &mediaflow.VideoTask{
		TaskID:   taskID,
		Stage:    mediaflow.NormalizeStage(env.Status),
		Progress: env.Progress,
		Error:    env.Error,
	}, nil
}

// GetVideoContent downloads the rendered video as base64
func (p *Provider) GetVideoContent(ctx context.Context, taskID string, cfg mediaflow.ProviderConfig) (*mediaflow.VideoContent, error) {
	meta := mediaflow.RequestMeta{
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/v1/videos/%s/content", mediaflow.TrimBaseURL(cfg.BaseURL), taskID),
	}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.VeoContentParams{
		Credentials: mediaflow.NewCredentials(cfg),
		TaskID:      taskID,
	})
	if err != nil {
		if mediaflow.IsCancelled(err) {
			return nil, err
		}
		return nil, mediaflow.NewBackendError(nil, err, meta)
	}
	if !env.Success {
		return nil, mediaflow.NewBackendError(env, nil, meta)
	}
	if env.VideoData == "" {
		return nil, mediaflow.NewEmptyResultError("EmptyVideoData", "API returned success without video data", meta, nil)
	}
	return &mediaflow.VideoContent{VideoData: env.VideoData, VideoURL: env.VideoURL}, nil
}
