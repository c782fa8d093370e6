// Package sora implements video generation over the OpenAI style
// video/generations task API.
package sora

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

var (
	supportedSizes     = []string{"1280x720", "720x1280", "1792x1024", "1024x1792"}
	supportedDurations = []int{10, 15, 25}
)

const maxInputImages = 1

// Provider implements mediaflow.VideoProvider for Sora
type Provider struct {
	backend mediaflow.Backend
}

// New creates a Sora provider dispatching through backend
func New(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend}
}

func (p *Provider) ID() string                   { return mediaflow.ProviderSora }
func (p *Provider) Name() string                 { return "Sora" }
func (p *Provider) Protocol() mediaflow.Protocol { return mediaflow.ProtocolOpenAI }

// Capabilities returns the accepted request shapes
func (p *Provider) Capabilities() mediaflow.VideoCapabilities {
	return mediaflow.VideoCapabilities{
		Capabilities:       []mediaflow.Capability{mediaflow.CapabilityTextToVideo, mediaflow.CapabilityImageToVideo},
		SupportedSizes:     append([]string(nil), supportedSizes...),
		SupportedDurations: append([]int(nil), supportedDurations...),
		MaxInputImages:     maxInputImages,
		SupportsInputImage: true,
	}
}

// ValidateRequest validates the request for Sora
func (p *Provider) ValidateRequest(req *mediaflow.VideoRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if req.Size != "" && !slices.Contains(supportedSizes, req.Size) {
		return &mediaflow.ValidationError{Field: "size", Message: fmt.Sprintf("unsupported video size: %s", req.Size)}
	}
	if req.Duration != 0 && !slices.Contains(supportedDurations, req.Duration) {
		return &mediaflow.ValidationError{Field: "duration", Message: fmt.Sprintf("unsupported video duration: %d", req.Duration)}
	}
	if len(req.Images) > maxInputImages {
		return &mediaflow.ValidationError{Field: "images", Message: fmt.Sprintf("Sora supports at most %d input image", maxInputImages)}
	}
	return nil
}

// BuildBackendParams sends the duration as a string of seconds
func (p *Provider) BuildBackendParams(req *mediaflow.VideoRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	params := mediaflow.VideoCreateParams{
		Credentials: mediaflow.NewCredentials(cfg),
		Model:       req.Model,
		Prompt:      req.Prompt,
		Size:        req.Size,
	}
	if req.Duration != 0 {
		params.Seconds = strconv.Itoa(req.Duration)
	}
	if len(req.Images) > 0 {
		params.InputImage = imagedata.Normalize(req.Images[0]).Base64
	}
	return params
}

// CreateTask creates a remote generation task
func (p *Provider) CreateTask(ctx context.Context, req *mediaflow.VideoRequest, cfg mediaflow.ProviderConfig) (*mediaflow.VideoTask, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: mediaflow.TrimBaseURL(cfg.BaseURL) + "/v1/video/generations",
		RequestBody: map[string]interface{}{
			"model":    req.Model,
			"prompt":   mediaflow.TruncatePrompt(req.Prompt),
			"seconds":  req.Duration,
			"size":     req.Size,
			"hasImage": len(req.Images) > 0,
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

// GetTaskStatus retrieves the task stage
func (p *Provider) GetTaskStatus(ctx context.Context, taskID string, cfg mediaflow.ProviderConfig) (*mediaflow.VideoTask, error) {
	meta := mediaflow.RequestMeta{
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/v1/video/generations/%s", mediaflow.TrimBaseURL(cfg.BaseURL), taskID),
	}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.VideoStatusParams{
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

	id := env.TaskID
	if id == "" {
		id = taskID
	}
	return &mediaflow.VideoTask{
		TaskID:   id,
		Stage:    mediaflow.NormalizeStage(env.Status),
		Progress: env.Progress,
		Error:    env.Error,
	}, nil
}

// GetVideoContent downloads the rendered video as base64
func (p *Provider) GetVideoContent(ctx context.Context, taskID string, cfg mediaflow.ProviderConfig) (*mediaflow.VideoContent, error) {
	meta := mediaflow.RequestMeta{
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/v1/video/generations/%s/content", mediaflow.TrimBaseURL(cfg.BaseURL), taskID),
	}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.VideoContentParams{
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
	if env.VideoData == "" && env.VideoURL == "" {
		return nil, mediaflow.NewEmptyResultError("EmptyVideoData", "API returned success without video data", meta, nil)
	}

	return &mediaflow.VideoContent{VideoData: env.VideoData, VideoURL: env.VideoURL}, nil
}
