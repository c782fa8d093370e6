// Package llm implements text generation over the Gemini, OpenAI chat
// completions, OpenAI Responses and Claude messages protocols.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

const (
	minTemperature = 0
	maxTemperature = 2
)

// Provider implements mediaflow.TextProvider for one protocol
type Provider struct {
	id       string
	name     string
	protocol mediaflow.Protocol
	backend  mediaflow.Backend

	// path is appended to the configured base URL to build the request URL
	path   func(model string) string
	params func(mediaflow.TextParams) mediaflow.BackendParams
}

// NewGemini creates a provider calling the Gemini generateContent endpoint
func NewGemini(backend mediaflow.Backend) *Provider {
	return &Provider{
		id:       mediaflow.ProviderGeminiText,
		name:     "Gemini",
		protocol: mediaflow.ProtocolGoogle,
		backend:  backend,
		path: func(model string) string {
			return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
		},
		params: func(p mediaflow.TextParams) mediaflow.BackendParams {
			p.BaseURL += "/v1beta"
			return mediaflow.GeminiTextParams{TextParams: p}
		},
	}
}

// NewOpenAIChat creates a provider calling chat completions
func NewOpenAIChat(backend mediaflow.Backend) *Provider {
	return &Provider{
		id:       mediaflow.ProviderOpenAIChat,
		name:     "OpenAI Chat",
		protocol: mediaflow.ProtocolOpenAI,
		backend:  backend,
		path:     func(string) string { return "/v1/chat/completions" },
		params: func(p mediaflow.TextParams) mediaflow.BackendParams {
			p.ResponseJSONSchema = StrictSchema(p.ResponseJSONSchema)
			return mediaflow.OpenAIChatParams{TextParams: p}
		},
	}
}

// NewOpenAIResponses creates a provider calling the Responses API
func NewOpenAIResponses(backend mediaflow.Backend) *Provider {
	return &Provider{
		id:       mediaflow.ProviderOpenAIResponses,
		name:     "OpenAI Responses",
		protocol: mediaflow.ProtocolOpenAIResponses,
		backend:  backend,
		path:     func(string) string { return "/v1/responses" },
		params: func(p mediaflow.TextParams) mediaflow.BackendParams {
			p.ResponseJSONSchema = StrictSchema(p.ResponseJSONSchema)
			return mediaflow.OpenAIResponsesParams{TextParams: p}
		},
	}
}

// NewClaude creates a provider calling the Anthropic messages endpoint
func NewClaude(backend mediaflow.Backend) *Provider {
	return &Provider{
		id:       mediaflow.ProviderClaude,
		name:     "Claude",
		protocol: mediaflow.ProtocolClaude,
		backend:  backend,
		path:     func(string) string { return "/v1/messages" },
		params: func(p mediaflow.TextParams) mediaflow.BackendParams {
			return mediaflow.ClaudeMessagesParams{TextParams: p}
		},
	}
}

func (p *Provider) ID() string                   { return p.id }
func (p *Provider) Name() string                 { return p.name }
func (p *Provider) Protocol() mediaflow.Protocol { return p.protocol }

// ValidateRequest validates the request
func (p *Provider) ValidateRequest(req *mediaflow.TextRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &mediaflow.ValidationError{Field: "prompt", Message: "prompt cannot be empty"}
	}
	if t := req.Temperature; t != nil && (*t < minTemperature || *t > maxTemperature) {
		return &mediaflow.ValidationError{Field: "temperature", Message: fmt.Sprintf("temperature must be between %d and %d", minTemperature, maxTemperature)}
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return &mediaflow.ValidationError{Field: "maxTokens", Message: "maxTokens must be positive"}
	}
	for i, f := range req.Files {
		if f.Data == "" {
			return &mediaflow.ValidationError{Field: "files", Message: fmt.Sprintf("file %d has no data", i)}
		}
	}
	return nil
}

// BuildBackendParams converts the request for the provider's protocol
func (p *Provider) BuildBackendParams(req *mediaflow.TextRequest, cfg mediaflow.ProviderConfig) mediaflow.BackendParams {
	return p.params(mediaflow.TextParams{
		Credentials:        mediaflow.NewCredentials(cfg),
		Model:              req.Model,
		Prompt:             req.Prompt,
		SystemPrompt:       req.SystemPrompt,
		Temperature:        req.Temperature,
		MaxTokens:          req.MaxTokens,
		Files:              normalizeFiles(req.Files),
		ResponseJSONSchema: req.ResponseJSONSchema,
	})
}

// Generate performs one round trip and returns the reply text
func (p *Provider) Generate(ctx context.Context, req *mediaflow.TextRequest, cfg mediaflow.ProviderConfig) (*mediaflow.TextResult, error) {
	if err := p.ValidateRequest(req); err != nil {
		return nil, err
	}

	meta := mediaflow.RequestMeta{
		Model:      req.Model,
		Provider:   cfg.Name,
		RequestURL: mediaflow.TrimBaseURL(cfg.BaseURL) + p.path(req.Model),
		RequestBody: map[string]interface{}{
			"model":      req.Model,
			"prompt":     mediaflow.TruncatePrompt(req.Prompt),
			"hasFiles":   len(req.Files) > 0,
			"filesCount": len(req.Files),
			"structured": req.ResponseJSONSchema != nil,
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
	if env.Text == "" {
		return nil, mediaflow.NewEmptyResultError("EmptyContent", "API returned success without content", meta, map[string]interface{}{
			"success":    env.Success,
			"hasContent": false,
		})
	}

	return &mediaflow.TextResult{Content: env.Text, Model: req.Model}, nil
}

// normalizeFiles strips data URI headers, taking the MIME type from the
// header when the file does not declare one.
func normalizeFiles(files []mediaflow.FileData) []mediaflow.FileData {
	if len(files) == 0 {
		return nil
	}
	out := make([]mediaflow.FileData, len(files))
	for i, f := range files {
		if strings.HasPrefix(strings.TrimSpace(f.Data), "data:") {
			img := imagedata.Normalize(f.Data)
			f.Data = img.Base64
			if f.MimeType == "" {
				f.MimeType = img.MimeType
			}
		}
		if f.MimeType == "" {
			f.MimeType = imagedata.DefaultMimeType
		}
		out[i] = f
	}
	return out
}

// Register adds every text provider. Each protocol has exactly one provider.
func Register(backend mediaflow.Backend, texts *mediaflow.TextRegistry) {
	texts.Register(NewGemini(backend))
	texts.Register(NewOpenAIChat(backend))
	texts.Register(NewOpenAIResponses(backend))
	texts.Register(NewClaude(backend))
}
