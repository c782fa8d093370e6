package httpexec

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkg/errors"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/imagedata"
)

// defaultClaudeMaxTokens is sent when the request sets no limit; the messages API requires one
const defaultClaudeMaxTokens = 4096

// schemaName names the structured output schema on OpenAI endpoints
const schemaName = "response"

type geminiTextContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiTextConfig struct {
	Temperature      *float64               `json:"temperature,omitempty"`
	MaxOutputTokens  *int                   `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
}

type geminiTextRequest struct {
	Contents         []geminiTextContent `json:"contents"`
	GenerationConfig *geminiTextConfig   `json:"generationConfig,omitempty"`
}

// geminiGenerateText calls generateContent and joins the text parts of the first candidate
func (e *Executor) geminiGenerateText(ctx context.Context, p mediaflow.GeminiTextParams) (*mediaflow.Envelope, error) {
	text := p.Prompt
	if p.SystemPrompt != "" {
		text = fmt.Sprintf("System instruction: %s\n\nUser request: %s", p.SystemPrompt, p.Prompt)
	}
	parts := []geminiPart{{Text: text}}
	for _, f := range p.Files {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: f.MimeType, Data: f.Data}})
	}

	body := geminiTextRequest{Contents: []geminiTextContent{{Role: "user", Parts: parts}}}
	if p.Temperature != nil || p.MaxTokens != nil || p.ResponseJSONSchema != nil {
		body.GenerationConfig = &geminiTextConfig{
			Temperature:     p.Temperature,
			MaxOutputTokens: p.MaxTokens,
		}
		if p.ResponseJSONSchema != nil {
			body.GenerationConfig.ResponseMimeType = "application/json"
			body.GenerationConfig.ResponseSchema = p.ResponseJSONSchema
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.BaseURL, p.Model)
	resp, err := e.makeRequest(ctx, http.MethodPost, url, map[string]string{"x-goog-api-key": p.APIKey}, body)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return resp.failure(), nil
	}

	var out geminiResponse
	if env := resp.decode(&out); env != nil {
		return env, nil
	}

	var sb strings.Builder
	if len(out.Candidates) > 0 {
		for _, part := range out.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return &mediaflow.Envelope{Success: true, Text: sb.String()}, nil
}

func (e *Executor) openAIClient(c mediaflow.Credentials) openai.Client {
	return openai.NewClient(
		openaioption.WithAPIKey(c.APIKey),
		openaioption.WithBaseURL(c.BaseURL+"/v1/"),
		openaioption.WithHTTPClient(e.client),
		openaioption.WithMaxRetries(0),
		openaioption.WithHeader("User-Agent", e.userAgent),
	)
}

// openAIChat calls chat completions. Only image files are attached.
func (e *Executor) openAIChat(ctx context.Context, p mediaflow.OpenAIChatParams) (*mediaflow.Envelope, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if p.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(p.SystemPrompt))
	}
	images := imageFiles(p.Files)
	if len(images) == 0 {
		messages = append(messages, openai.UserMessage(p.Prompt))
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(p.Prompt)}
		for _, f := range images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: fileDataURI(f)}))
		}
		messages = append(messages, openai.UserMessage(parts))
	}

	body := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.Model),
		Messages: messages,
	}
	if p.Temperature != nil {
		body.Temperature = openai.Float(*p.Temperature)
	}
	if p.MaxTokens != nil {
		body.MaxTokens = openai.Int(int64(*p.MaxTokens))
	}
	if p.ResponseJSONSchema != nil {
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: p.ResponseJSONSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	client := e.openAIClient(p.Credentials)
	completion, err := client.Chat.Completions.New(ctx, body)
	if err != nil {
		return sdkFailure(err)
	}

	env := &mediaflow.Envelope{Success: true}
	if len(completion.Choices) > 0 {
		msg := completion.Choices[0].Message
		if msg.Content == "" && msg.Refusal != "" {
			return &mediaflow.Envelope{Error: "model refused: " + msg.Refusal}, nil
		}
		env.Text = msg.Content
	}
	return env, nil
}

// openAIResponses calls the Responses API with one user message
func (e *Executor) openAIResponses(ctx context.Context, p mediaflow.OpenAIResponsesParams) (*mediaflow.Envelope, error) {
	content := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: p.Prompt}},
	}
	for _, f := range imageFiles(p.Files) {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				ImageURL: openai.String(fileDataURI(f)),
				Detail:   responses.ResponseInputImageDetailAuto,
			},
		})
	}

	body := responses.ResponseNewParams{
		Model: shared.ResponsesModel(p.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				{OfMessage: &responses.EasyInputMessageParam{
					Role:    responses.EasyInputMessageRoleUser,
					Content: responses.EasyInputMessageContentUnionParam{OfInputItemContentList: content},
				}},
			},
		},
	}
	if p.SystemPrompt != "" {
		body.Instructions = openai.String(p.SystemPrompt)
	}
	if p.Temperature != nil {
		body.Temperature = openai.Float(*p.Temperature)
	}
	if p.MaxTokens != nil {
		body.MaxOutputTokens = openai.Int(int64(*p.MaxTokens))
	}
	if p.ResponseJSONSchema != nil {
		body.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   schemaName,
					Schema: p.ResponseJSONSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	client := e.openAIClient(p.Credentials)
	resp, err := client.Responses.New(ctx, body)
	if err != nil {
		return sdkFailure(err)
	}
	return &mediaflow.Envelope{Success: true, Text: resp.OutputText()}, nil
}

// claudeMessages calls the messages API. Image files precede the prompt.
func (e *Executor) claudeMessages(ctx context.Context, p mediaflow.ClaudeMessagesParams) (*mediaflow.Envelope, error) {
	client := anthropic.NewClient(
		anthropicoption.WithAPIKey(p.APIKey),
		anthropicoption.WithBaseURL(p.BaseURL+"/"),
		anthropicoption.WithHTTPClient(e.client),
		anthropicoption.WithMaxRetries(0),
		anthropicoption.WithHeader("User-Agent", e.userAgent),
	)

	var blocks []anthropic.ContentBlockParamUnion
	for _, f := range imageFiles(p.Files) {
		blocks = append(blocks, anthropic.NewImageBlockBase64(f.MimeType, f.Data))
	}
	blocks = append(blocks, anthropic.NewTextBlock(p.Prompt))

	maxTokens := int64(defaultClaudeMaxTokens)
	if p.MaxTokens != nil {
		maxTokens = int64(*p.MaxTokens)
	}
	body := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.Model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if p.SystemPrompt != "" {
		body.System = []anthropic.TextBlockParam{{Text: p.SystemPrompt}}
	}
	if p.Temperature != nil {
		body.Temperature = anthropic.Float(*p.Temperature)
	}

	msg, err := client.Messages.New(ctx, body)
	if err != nil {
		return sdkFailure(err)
	}

	env := &mediaflow.Envelope{Success: true}
	for _, block := range msg.Content {
		if block.Type == "text" {
			env.Text = block.Text
			break
		}
	}
	return env, nil
}

// sdkFailure turns an API status error into a failed envelope. Anything
// else is a transport failure.
func sdkFailure(err error) (*mediaflow.Envelope, error) {
	var oe *openai.Error
	if errors.As(err, &oe) {
		return apiFailure(oe.StatusCode, oe.RawJSON(), oe.Message), nil
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return apiFailure(ae.StatusCode, ae.RawJSON(), ae.Error()), nil
	}
	return nil, errors.Wrap(err, "failed to make request")
}

func apiFailure(status int, raw, fallback string) *mediaflow.Envelope {
	if raw == "" {
		raw = fallback
	}
	r := &response{status: status, body: []byte(raw)}
	return r.failure()
}

func imageFiles(files []mediaflow.FileData) []mediaflow.FileData {
	var out []mediaflow.FileData
	for _, f := range files {
		if strings.HasPrefix(f.MimeType, "image/") {
			out = append(out, f)
		}
	}
	return out
}

func fileDataURI(f mediaflow.FileData) string {
	return imagedata.DataURI(imagedata.Image{MimeType: f.MimeType, Base64: f.Data})
}
