package mediaflow

import "github.com/pkg/errors"

// ImageResponse is the outcome envelope returned to the editor.
// Either ImageData or Error is set, never both.
type ImageResponse struct {
	ImageData    string            `json:"imageData,omitempty"`
	Text         string            `json:"text,omitempty"`
	Metadata     *ResponseMetadata `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"errorKind,omitempty"`
	ErrorDetails *ErrorDetails     `json:"errorDetails,omitempty"`
}

// ResponseMetadata describes how a result was produced
type ResponseMetadata struct {
	Model string `json:"model,omitempty"`
}

// VideoResponse is the outcome envelope of a video operation
type VideoResponse struct {
	TaskID       string        `json:"taskId,omitempty"`
	Status       TaskStage     `json:"status,omitempty"`
	Progress     int           `json:"progress,omitempty"`
	VideoData    string        `json:"videoData,omitempty"`
	VideoURL     string        `json:"videoUrl,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	ErrorDetails *ErrorDetails `json:"errorDetails,omitempty"`
}

// NewImageResponse builds the envelope for a GenerateImage outcome
func NewImageResponse(result *ImageResult, err error) ImageResponse {
	if err != nil {
		return ImageResponse{
			Error:        err.Error(),
			ErrorKind:    ErrorKind(err),
			ErrorDetails: DetailsOf(err),
		}
	}
	if result == nil {
		return ImageResponse{Error: "no image generated", ErrorKind: string(ProviderErrorEmptyResult)}
	}
	return ImageResponse{
		ImageData: result.ImageData,
		Text:      result.Text,
		Metadata:  &ResponseMetadata{Model: result.Model},
	}
}

// NewVideoResponse builds the envelope for a video operation outcome.
// task and content may each be nil.
func NewVideoResponse(task *VideoTask, content *VideoContent, err error) VideoResponse {
	if err != nil {
		return VideoResponse{
			Error:        err.Error(),
			ErrorKind:    ErrorKind(err),
			ErrorDetails: DetailsOf(err),
		}
	}
	var resp VideoResponse
	if task != nil {
		resp.TaskID = task.TaskID
		resp.Status = task.Stage
		resp.Progress = task.Progress
		resp.Error = task.Error
	}
	if content != nil {
		resp.VideoData = content.VideoData
		resp.VideoURL = content.VideoURL
	}
	return resp
}

// ErrorKind classifies err for the editor
func ErrorKind(err error) string {
	var (
		pe *ProviderError
		ce *ConfigError
	)
	switch {
	case err == nil:
		return ""
	case IsCancelled(err):
		return "cancelled"
	case IsValidationError(err):
		return "validation"
	case errors.As(err, &ce), errors.Is(err, ErrProviderNotFound):
		return "config"
	case errors.As(err, &pe):
		return string(pe.Kind)
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTaskNotReady):
		return "not_ready"
	default:
		return "unknown"
	}
}
