package mediaflow

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Text generation node types
const (
	NodeLLM        NodeType = "llm"
	NodeLLMContent NodeType = "llmContent"
)

// FileData is a base64 encoded attachment of a text request
type FileData struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
}

// TextRequest represents a text generation request.
// ResponseJSONSchema asks the model for JSON matching the schema.
type TextRequest struct {
	Prompt             string                 `json:"prompt"`
	Model              string                 `json:"model"`
	SystemPrompt       string                 `json:"systemPrompt,omitempty"`
	Temperature        *float64               `json:"temperature,omitempty"`
	MaxTokens          *int                   `json:"maxTokens,omitempty"`
	Files              []FileData             `json:"files,omitempty"`
	ResponseJSONSchema map[string]interface{} `json:"responseJsonSchema,omitempty"`
}

// TextResult is a successful text generation
type TextResult struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// TextProvider defines the interface of text generation providers
type TextProvider interface {
	Descriptor

	// ValidateRequest checks the request locally, without any network call
	ValidateRequest(req *TextRequest) error

	// BuildBackendParams converts the request into backend parameters
	BuildBackendParams(req *TextRequest, cfg ProviderConfig) BackendParams

	// Generate validates the request and performs one generation round trip
	Generate(ctx context.Context, req *TextRequest, cfg ProviderConfig) (*TextResult, error)
}

// TextRegistry holds text providers
type TextRegistry = Registry[TextProvider]

// NewTextRegistry creates an empty text provider registry
func NewTextRegistry(logger *zap.Logger) *TextRegistry {
	return NewRegistry[TextProvider]("text", logger)
}

// WithTextRegistry enables text generation
func WithTextRegistry(texts *TextRegistry) Option {
	return func(c *Client) {
		c.texts = texts
	}
}

// Texts returns the text provider registry, nil when text generation is not enabled
func (c *Client) Texts() *TextRegistry {
	return c.texts
}

func (c *Client) textProvider(nodeType NodeType) (TextProvider, ProviderConfig, error) {
	cfg, err := c.ResolveConfig(nodeType)
	if err != nil {
		return nil, cfg, err
	}
	if c.texts == nil {
		return nil, cfg, &ConfigError{Kind: ConfigUnsupportedProtocol, NodeType: nodeType, Protocol: cfg.Protocol}
	}
	p, ok := lookup(c.texts, cfg)
	if !ok {
		return nil, cfg, &ConfigError{Kind: ConfigUnsupportedProtocol, NodeType: nodeType, Protocol: cfg.Protocol}
	}
	return p, cfg, nil
}

// GenerateText runs one text generation for the provider configured on nodeType
func (c *Client) GenerateText(ctx context.Context, nodeType NodeType, req *TextRequest) (*TextResult, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Message: "request cannot be nil"}
	}

	p, cfg, err := c.textProvider(nodeType)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	c.logger.Info("generating text",
		zap.String("provider", p.ID()),
		zap.String("nodeType", string(nodeType)),
		zap.String("model", req.Model),
		zap.Bool("structured", req.ResponseJSONSchema != nil))

	return p.Generate(ctx, req, cfg)
}

// ValidateJSONOutput parses content generated for a JSON schema
func ValidateJSONOutput(content string) (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, errors.Wrap(err, "output is not valid JSON")
	}
	return data, nil
}

// TextResponse is the outcome envelope of a text generation.
// Data holds the parsed output when a JSON schema was requested.
type TextResponse struct {
	Content      string            `json:"content,omitempty"`
	Data         interface{}       `json:"data,omitempty"`
	Metadata     *ResponseMetadata `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"errorKind,omitempty"`
	ErrorDetails *ErrorDetails     `json:"errorDetails,omitempty"`
}

// NewTextResponse builds the envelope for a GenerateText outcome
func NewTextResponse(result *TextResult, err error) TextResponse {
	if err != nil {
		return TextResponse{
			Error:        err.Error(),
			ErrorKind:    ErrorKind(err),
			ErrorDetails: DetailsOf(err),
		}
	}
	if result == nil {
		return TextResponse{Error: "no content generated", ErrorKind: string(ProviderErrorEmptyResult)}
	}
	return TextResponse{
		Content:  result.Content,
		Metadata: &ResponseMetadata{Model: result.Model},
	}
}
