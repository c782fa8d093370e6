// Package kling implements video generation for Kling.
//
// Kling exposes one endpoint family per generation mode and status queries
// must hit the family the task was created in, so task ids issued by this
// provider carry the mode as a prefix: "<mode>/<remote task id>".
package kling

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

// Generation modes
const (
	ModeText2Video  = "text2video"
	ModeImage2Video = "image2video"
)

var (
	supportedSizes     = []string{"1280x720", "720x1280", "1920x1080", "1080x1920", "1024x1024"}
	supportedDurations = []int{5, 10}
)

const maxInputImages = 2

// Provider implements mediaflow.VideoProvider for Kling video generation
type Provider struct {
	backend mediaflow.Backend
}

// New creates a Kling provider dispatching through backend
func New(backend mediaflow.Backend) *Provider {
	return &Provider{backend: backend}
}

func (p *Provider) ID() string                   { return mediaflow.ProviderKling }
func (p *Provider) Name() string                 { return "Kling" }
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

// ValidateRequest validates the request for Kling
func (p *Provider) ValidateRequest(req *mediaflow.VideoRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if req.Model == "" {
		return &mediaflow.ValidationError{Field: "model", Message: "please select a model"}
	}
	if len(req.Images) > maxInputImages {
		return &mediaflow.ValidationError{Field: "images", Message: fmt.Sprintf("Kling supports at most %d input images", maxInputImages)}
	}
	if req.Size != "" && !slices.Contains(supportedSizes, req.Size) {
		return &mediaflow.ValidationError{Field: "size", Message: fmt.Sprintf("unsupported video size: %s", req.Size)}
	}
	if req.Duration != 0 && !slices.Contains(supportedDurations, req.Duration) {
		return &mediaflow.ValidationError{Field: "duration", Message: "Kling only supports 5s or 10s duration"}
	}
	return nil
}

// Mode derives the generation mode from the number of input images
func Mode(req *mediaflow.VideoRequest) string {
	if len(req.Images) > 0 {
		return ModeImage2Video
	}
	return ModeText2Video
}

// BuildBackendParams converts the request to Kling's create parameters
func (p *Provider) BuildBackendParams(req *mediaflow.VideoRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	params := mediaflow.KlingCreateParams{
		Credentials: mediaflow.NewCredentials(cfg),
		Model:       req.Model,
		Prompt:      req.Prompt,
		Mode:        Mode(req),
		Duration:    req.Duration,
	}

	if len(req.Images) > 0 {
		params.Image = imagedata.Normalize(req.Images[0]).Base64
	}
	if len(req.Images) > 1 {
		params.ImageTail = imagedata.Normalize(req.Images[1]).Base64
	}
	if w, h, ok := parseSize(req.Size); ok {
		params.Width, params.Height = w, h
	}

	if md := req.Metadata; md != nil && (md.NegativePrompt != "" || md.QualityLevel != "") {
		params.Metadata = &mediaflow.KlingMetadata{
			NegativePrompt: md.NegativePrompt,
			QualityLevel:   md.QualityLevel,
		}
	}
	return params
}

// CreateTask creates a video generation task
func (p *Provider) CreateTask(ctx context.Context, req *mediaflow.VideoRequest, cfg mediaflow.ProviderConfig) (*mediaflow.VideoTask, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	mode := Mode(req)
	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/kling/v1/videos/%s", mediaflow.TrimBaseURL(cfg.BaseURL), mode),
		RequestBody: map[string]interface{}{
			"model":    req.Model,
			"prompt":   mediaflow.TruncatePrompt(req.Prompt),
			"mode":     mode,
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
		TaskID:   TaskID(mode, env.TaskID),
		Stage:    convertStatus(env.Status),
		Progress: env.Progress,
	}, nil
}

// GetTaskStatus retrieves the task status
func (p *Provider) GetTaskStatus(ctx context.Context, taskID string, cfg mediaflow.ProviderConfig) (*mediaflow.VideoTask, error) {
	mode, remoteID := SplitTaskID(taskID)
	meta := mediaflow.RequestMeta{
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/kling/v1/videos/%s/%s", mediaflow.TrimBaseURL(cfg.BaseURL), mode, remoteID),
	}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.KlingStatusParams{
		Credentials: mediaflow.NewCredentials(cfg),
		TaskID:      remoteID,
		Mode:        mode,
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
		Stage:    convertStatus(env.Status),
		Progress: env.Progress,
		Error:    env.Error,
	}, nil
}

// GetVideoContent returns the rendered video. When Kling only hands out a
// URL the video is downloaded through the backend.
func (p *Provider) GetVideoContent(ctx context.Context, taskID string, cfg mediaflow.ProviderConfig) (*mediaflow.VideoContent, error) {
	mode, remoteID := SplitTaskID(taskID)
	meta := mediaflow.RequestMeta{
		Provider:   cfg.Name,
		RequestURL: fmt.Sprintf("%s/kling/v1/videos/%s/%s", mediaflow.TrimBaseURL(cfg.BaseURL), mode, remoteID),
	}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.KlingContentParams{
		Credentials: mediaflow.NewCredentials(cfg),
		TaskID:      remoteID,
		Mode:        mode,
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

	content := &mediaflow.VideoContent{VideoData: env.VideoData, VideoURL: env.VideoURL}
	if content.VideoData != "" {
		return content, nil
	}
	if content.VideoURL == "" {
		return nil, mediaflow.NewEmptyResultError("EmptyVideoData", "API returned success without video data", meta, nil)
	}

	data, err := p.DownloadVideo(ctx, content.VideoURL)
	if err != nil {
		return nil, err
	}
	content.VideoData = data
	return content, nil
}

// DownloadVideo fetches a video URL and returns it base64 encoded
func (p *Provider) DownloadVideo(ctx context.Context, videoURL string) (string, error) {
	meta := mediaflow.RequestMeta{Provider: p.Name(), RequestURL: videoURL}

	env, err := mediaflow.Call(ctx, p.backend, mediaflow.KlingDownloadParams{VideoURL: videoURL})
	if err != nil {
		if mediaflow.IsCancelled(err) {
			return "", err
		}
		return "", mediaflow.NewBackendError(nil, err, meta)
	}
	if !env.Success {
		return "", mediaflow.NewBackendError(env, nil, meta)
	}
	if env.VideoData == "" {
		return "", mediaflow.NewEmptyResultError("EmptyVideoData", "video download returned no data", meta, nil)
	}
	return env.VideoData, nil
}

// TaskID joins a mode and a remote task id
func TaskID(mode, remoteID string) string {
	return mode + "/" + remoteID
}

// SplitTaskID reverses TaskID. Ids without a mode prefix are text2video tasks.
func SplitTaskID(taskID string) (mode, remoteID string) {
	if m, id, ok := strings.Cut(taskID, "/"); ok && (m == ModeText2Video || m == ModeImage2Video) {
		return m, id
	}
	return ModeText2Video, taskID
}

// convertStatus converts Kling status to standard stage
func convertStatus(status string) mediaflow.TaskStage {
	switch status {
	case "submitted", "queued":
		return mediaflow.StageQueued
	case "processing":
		return mediaflow.StageInProgress
	case "succeed", "succeeded", "completed":
		return mediaflow.StageCompleted
	case "failed":
		return mediaflow.StageFailed
	default:
		return mediaflow.StageQueued
	}
}

func parseSize(size string) (width, height int, ok bool) {
	w, h, found := strings.Cut(size, "x")
	if !found {
		return 0, 0, false
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil {
		return 0, 0, false
	}
	return width, height, true
}
