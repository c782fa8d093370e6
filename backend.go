package mediaflow

import (
	"context"
	"strings"

	"github.com/feitianbubu/mediaflow/imagedata"
)

// Verb names a network execution backend command
type Verb string

const (
	VerbGeminiGenerateContent Verb = "gemini_generate_content"
	VerbDalleGenerateImage    Verb = "dalle_generate_image"
	VerbVideoCreateTask       Verb = "video_create_task"
	VerbVideoGetStatus        Verb = "video_get_status"
	VerbVideoGetContent       Verb = "video_get_content"
	VerbKlingCreateTask       Verb = "kling_create_task"
	VerbKlingGetStatus        Verb = "kling_get_status"
	VerbKlingGetContent       Verb = "kling_get_content"
	VerbKlingDownloadVideo    Verb = "kling_download_video"
	VerbVeoCreateTask         Verb = "veo_create_task"
	VerbVeoGetStatus          Verb = "veo_get_status"
	VerbVeoGetContent         Verb = "veo_get_content"

	VerbGeminiGenerateText   Verb = "gemini_generate_text"
	VerbOpenAIChatCompletion Verb = "openai_chat_completion"
	VerbOpenAIResponses      Verb = "openai_responses"
	VerbClaudeChatCompletion Verb = "claude_chat_completion"
)

// Backend performs the network call described by params.
// A nil error with a non-success envelope is a remote failure; a non-nil error
// is a failure to execute the call at all.
type Backend interface {
	Invoke(ctx context.Context, params BackendParams) (*Envelope, error)
}

// BackendFunc adapts a function to the Backend interface
type BackendFunc func(ctx context.Context, params BackendParams) (*Envelope, error)

func (f BackendFunc) Invoke(ctx context.Context, params BackendParams) (*Envelope, error) {
	return f(ctx, params)
}

// BackendParams is implemented only by the parameter types of this package
type BackendParams interface {
	Verb() Verb
	backendParams()
}

// Envelope is the normalized backend response
type Envelope struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`

	ImageData     string `json:"imageData,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	Text          string `json:"text,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`

	TaskID   string `json:"taskId,omitempty"`
	Status   string `json:"status,omitempty"`
	Progress int    `json:"progress,omitempty"`

	VideoData string `json:"videoData,omitempty"`
	VideoURL  string `json:"videoUrl,omitempty"`
}

// Credentials are shared by every provider verb
type Credentials struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey"`
}

// NewCredentials trims trailing slashes from the configured base URL
func NewCredentials(cfg ProviderConfig) Credentials {
	return Credentials{BaseURL: TrimBaseURL(cfg.BaseURL), APIKey: cfg.APIKey}
}

// TrimBaseURL removes trailing slashes
func TrimBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

type GeminiGenerateParams struct {
	Credentials
	Model       string            `json:"model"`
	Prompt      string            `json:"prompt"`
	InputImages []imagedata.Image `json:"inputImages,omitempty"`
	AspectRatio string            `json:"aspectRatio"`
	ImageSize   string            `json:"imageSize,omitempty"`
}

type DalleGenerateParams struct {
	Credentials
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	InputImages    []string `json:"inputImages,omitempty"`
	AspectRatio    string   `json:"aspectRatio"`
	NegativePrompt string   `json:"negativePrompt,omitempty"`
}

type VideoCreateParams struct {
	Credentials
	Model      string `json:"model"`
	Prompt     string `json:"prompt"`
	Seconds    string `json:"seconds,omitempty"`
	Size       string `json:"size,omitempty"`
	InputImage string `json:"inputImage,omitempty"`
}

type VideoStatusParams struct {
	Credentials
	TaskID string `json:"taskId"`
}

type VideoContentParams struct {
	Credentials
	TaskID string `json:"taskId"`
}

// KlingMetadata uses the vendor's snake_case names
type KlingMetadata struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	QualityLevel   string `json:"quality_level,omitempty"`
}

type KlingCreateParams struct {
	Credentials
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	Mode      string         `json:"mode"`
	Image     string         `json:"image,omitempty"`
	ImageTail string         `json:"imageTail,omitempty"`
	Duration  int            `json:"duration,omitempty"`
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	Metadata  *KlingMetadata `json:"metadata,omitempty"`
}

type KlingStatusParams struct {
	Credentials
	TaskID string `json:"taskId"`
	Mode   string `json:"mode"`
}

type KlingContentParams struct {
	Credentials
	TaskID string `json:"taskId"`
	Mode   string `json:"mode"`
}

type KlingDownloadParams struct {
	VideoURL string `json:"videoUrl"`
}

type VeoMetadata struct {
	AspectRatio      string           `json:"aspectRatio,omitempty"`
	DurationSeconds  int              `json:"durationSeconds,omitempty"`
	NegativePrompt   string           `json:"negativePrompt,omitempty"`
	PersonGeneration string           `json:"personGeneration,omitempty"`
	ReferenceImages  []ReferenceImage `json:"referenceImages,omitempty"`
}

type VeoCreateParams struct {
	Credentials
	Model    string       `json:"model"`
	Prompt   string       `json:"prompt"`
	Images   []string     `json:"images,omitempty"`
	Metadata *VeoMetadata `json:"metadata,omitempty"`
}

type VeoStatusParams struct {
	Credentials
	TaskID string `json:"taskId"`
}

type VeoContentParams struct {
	Credentials
	TaskID string `json:"taskId"`
}

// TextParams is shared by the chat style verbs. Envelope.Text carries the reply.
type TextParams struct {
	Credentials
	Model              string                 `json:"model"`
	Prompt             string                 `json:"prompt"`
	SystemPrompt       string                 `json:"systemPrompt,omitempty"`
	Temperature        *float64               `json:"temperature,omitempty"`
	MaxTokens          *int                   `json:"maxTokens,omitempty"`
	Files              []FileData             `json:"files,omitempty"`
	ResponseJSONSchema map[string]interface{} `json:"responseJsonSchema,omitempty"`
}

// GeminiTextParams calls generateContent. BaseURL carries the API version.
type GeminiTextParams struct {
	TextParams
}

type OpenAIChatParams struct {
	TextParams
}

type OpenAIResponsesParams struct {
	TextParams
}

type ClaudeMessagesParams struct {
	TextParams
}

func (GeminiGenerateParams) Verb() Verb { return VerbGeminiGenerateContent }
func (DalleGenerateParams) Verb() Verb  { return VerbDalleGenerateImage }
func (VideoCreateParams) Verb() Verb    { return VerbVideoCreateTask }
func (VideoStatusParams) Verb() Verb    { return VerbVideoGetStatus }
func (VideoContentParams) Verb() Verb   { return VerbVideoGetContent }
func (KlingCreateParams) Verb() Verb    { return VerbKlingCreateTask }
func (KlingStatusParams) Verb() Verb    { return VerbKlingGetStatus }
func (KlingContentParams) Verb() Verb   { return VerbKlingGetContent }
func (KlingDownloadParams) Verb() Verb  { return VerbKlingDownloadVideo }
func (VeoCreateParams) Verb() Verb      { return VerbVeoCreateTask }
func (VeoStatusParams) Verb() Verb      { return VerbVeoGetStatus }
func (VeoContentParams) Verb() Verb     { return VerbVeoGetContent }

func (GeminiTextParams) Verb() Verb      { return VerbGeminiGenerateText }
func (OpenAIChatParams) Verb() Verb      { return VerbOpenAIChatCompletion }
func (OpenAIResponsesParams) Verb() Verb { return VerbOpenAIResponses }
func (ClaudeMessagesParams) Verb() Verb  { return VerbClaudeChatCompletion }

func (GeminiGenerateParams) backendParams() {}
func (DalleGenerateParams) backendParams()  {}
func (VideoCreateParams) backendParams()    {}
func (VideoStatusParams) backendParams()    {}
func (VideoContentParams) backendParams()   {}
func (KlingCreateParams) backendParams()    {}
func (KlingStatusParams) backendParams()    {}
func (KlingContentParams) backendParams()   {}
func (KlingDownloadParams) backendParams()  {}
func (VeoCreateParams) backendParams()      {}
func (VeoStatusParams) backendParams()      {}
func (VeoContentParams) backendParams()     {}

func (GeminiTextParams) backendParams()      {}
func (OpenAIChatParams) backendParams()      {}
func (OpenAIResponsesParams) backendParams() {}
func (ClaudeMessagesParams) backendParams()  {}

// Call invokes the backend between two cancellation checks so that a result
// arriving after the caller gave up is discarded.
func Call(ctx context.Context, backend Backend, params BackendParams) (*Envelope, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	env, err := backend.Invoke(ctx, params)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, err
	}
	if env == nil {
		return &Envelope{Error: "backend returned an empty response"}, nil
	}
	return env, nil
}
