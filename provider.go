package mediaflow

import "context"

// Descriptor identifies a provider in a registry
type Descriptor interface {
	// ID returns the unique provider id
	ID() string

	// Name returns the display name
	Name() string

	// Protocol returns the wire protocol the provider speaks
	Protocol() Protocol
}

// ImageProvider defines the interface that all image generation providers must implement
type ImageProvider interface {
	Descriptor

	// Capabilities describes the accepted requests
	Capabilities() ImageCapabilities

	// ValidateRequest checks the request locally, without any network call
	ValidateRequest(req *ImageRequest) error

	// BuildBackendParams converts the request into backend parameters
	BuildBackendParams(req *ImageRequest, cfg ProviderConfig) BackendParams

	// Generate validates the request and performs one generation round trip
	Generate(ctx context.Context, req *ImageRequest, cfg ProviderConfig) (*ImageResult, error)
}

// VideoProvider defines the interface that all video generation providers must implement
type VideoProvider interface {
	Descriptor

	// Capabilities describes the accepted requests
	Capabilities() VideoCapabilities

	// ValidateRequest checks the request locally, without any network call
	ValidateRequest(req *VideoRequest) error

	// BuildBackendParams converts the request into backend create parameters
	BuildBackendParams(req *VideoRequest, cfg ProviderConfig) BackendParams

	// CreateTask validates the request and creates a remote task
	CreateTask(ctx context.Context, req *VideoRequest, cfg ProviderConfig) (*VideoTask, error)

	// GetTaskStatus retrieves the current stage of a task
	GetTaskStatus(ctx context.Context, taskID string, cfg ProviderConfig) (*VideoTask, error)

	// GetVideoContent fetches the output of a completed task
	GetVideoContent(ctx context.Context, taskID string, cfg ProviderConfig) (*VideoContent, error)
}

// NormalizeStage maps the status strings used by video backends onto TaskStage.
// Unknown values are treated as still running.
func NormalizeStage(status string) TaskStage {
	switch status {
	case "queued", "submitted", "pending":
		return StageQueued
	case "completed", "succeeded", "succeed", "success":
		return StageCompleted
	case "failed", "failure", "error":
		return StageFailed
	default:
		return StageInProgress
	}
}
