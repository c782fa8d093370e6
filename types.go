package mediaflow

// Protocol is the wire-format family a provider speaks
type Protocol string

const (
	ProtocolGoogle          Protocol = "google"
	ProtocolOpenAI          Protocol = "openai"
	ProtocolOpenAIResponses Protocol = "openaiResponses"
	ProtocolClaude          Protocol = "claude"
)

// Provider identifiers shipped with this module
const (
	ProviderGemini = "gemini"
	ProviderFlux   = "flux"
	ProviderSora   = "sora"
	ProviderKling  = "kling"
	ProviderVeo    = "veo"

	ProviderOpenAIChatImage      = "openai-chat-image"
	ProviderOpenAIResponsesImage = "openai-responses-image"

	ProviderGeminiText      = "gemini-text"
	ProviderOpenAIChat      = "openai-chat"
	ProviderOpenAIResponses = "openai-responses"
	ProviderClaude          = "claude"
)

// ProviderConfig holds the credentials and endpoint of one configured provider
type ProviderConfig struct {
	Name     string   `json:"name" mapstructure:"name"`
	APIKey   string   `json:"apiKey" mapstructure:"apiKey"`
	BaseURL  string   `json:"baseUrl" mapstructure:"baseUrl"`
	Protocol Protocol `json:"protocol" mapstructure:"protocol"`
	// Adapter pins a provider id. When empty the provider is looked up by protocol.
	Adapter string `json:"adapter,omitempty" mapstructure:"adapter"`
}

// NodeType identifies the editor node that requests a generation
type NodeType string

const (
	NodeImageGeneratorPro  NodeType = "imageGeneratorPro"
	NodeImageGeneratorFast NodeType = "imageGeneratorFast"
	NodeVideoGenerator     NodeType = "videoGenerator"
	NodeVeoGenerator       NodeType = "veoGenerator"
)

// Capability describes a generation mode supported by a provider
type Capability string

const (
	CapabilityTextToImage  Capability = "text-to-image"
	CapabilityImageToImage Capability = "image-to-image"
	CapabilityTextToVideo  Capability = "text-to-video"
	CapabilityImageToVideo Capability = "image-to-video"
)

// ImageRequest represents an image generation or edit request
type ImageRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	InputImages    []string `json:"inputImages,omitempty"`
	AspectRatio    string   `json:"aspectRatio,omitempty"`
	ImageSize      string   `json:"imageSize,omitempty"`
	NegativePrompt string   `json:"negativePrompt,omitempty"`
}

// ImageResult is a successful image generation
type ImageResult struct {
	ImageData string `json:"imageData"`
	Text      string `json:"text,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ImageCapabilities describes what an image provider accepts
type ImageCapabilities struct {
	Capabilities                []Capability `json:"capabilities"`
	SupportedAspectRatios       []string     `json:"supportedAspectRatios"`
	SupportedImageSizes         []string     `json:"supportedImageSizes"`
	MaxInputImages              int          `json:"maxInputImages"`
	SupportsMultipleInputImages bool         `json:"supportsMultipleInputImages"`
}

// VideoRequest represents a video generation request.
// Images holds 0 (text-to-video), 1 (first frame) or 2 (first and last frame) inputs.
type VideoRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model"`
	Images      []string       `json:"images,omitempty"`
	Duration    int            `json:"duration,omitempty"`
	Size        string         `json:"size,omitempty"`
	AspectRatio string         `json:"aspectRatio,omitempty"`
	Metadata    *VideoMetadata `json:"metadata,omitempty"`
}

// VideoMetadata contains provider specific options
type VideoMetadata struct {
	NegativePrompt   string           `json:"negativePrompt,omitempty"`
	Style            string           `json:"style,omitempty"`
	QualityLevel     string           `json:"qualityLevel,omitempty"`
	PersonGeneration string           `json:"personGeneration,omitempty"`
	ReferenceImages  []ReferenceImage `json:"referenceImages,omitempty"`
}

// ReferenceImage is an asset image used to steer a Veo generation
type ReferenceImage struct {
	Image         ReferenceImageData `json:"image"`
	ReferenceType string             `json:"referenceType"`
}

// ReferenceImageData carries the reference image payload
type ReferenceImageData struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

// TaskStage represents the provider reported phase of a video task
type TaskStage string

const (
	StageQueued     TaskStage = "queued"
	StageInProgress TaskStage = "in_progress"
	StageCompleted  TaskStage = "completed"
	StageFailed     TaskStage = "failed"
)

// Terminal reports whether no further status transition is expected
func (s TaskStage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// VideoTask is the state of a remote video generation task
type VideoTask struct {
	TaskID   string    `json:"taskId"`
	Stage    TaskStage `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// VideoContent is the final output of a completed task
type VideoContent struct {
	VideoData string `json:"videoData,omitempty"`
	VideoURL  string `json:"videoUrl,omitempty"`
}

// ProgressInfo is emitted on every poll
type ProgressInfo struct {
	TaskID   string    `json:"taskId"`
	Stage    TaskStage `json:"stage"`
	Progress int       `json:"progress"`
}

// VideoCapabilities describes what a video provider accepts
type VideoCapabilities struct {
	Capabilities          []Capability `json:"capabilities"`
	SupportedSizes        []string     `json:"supportedSizes"`
	SupportedAspectRatios []string     `json:"supportedAspectRatios,omitempty"`
	SupportedDurations    []int        `json:"supportedDurations"`
	MaxInputImages        int          `json:"maxInputImages"`
	SupportsInputImage    bool         `json:"supportsInputImage"`
}
