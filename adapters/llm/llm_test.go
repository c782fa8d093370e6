package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/feitianbubu/mediaflow"
)

type fakeBackend struct {
	calls []mediaflow.BackendParams
	env   *mediaflow.Envelope
	err   error
}

func (f *fakeBackend) Invoke(ctx context.Context, params mediaflow.BackendParams) (*mediaflow.Envelope, error) {
	f.calls = append(f.calls, params)
	return f.env, f.err
}

func testConfig(protocol mediaflow.Protocol) mediaflow.ProviderConfig {
	return mediaflow.ProviderConfig{
		Name:     "my-llm",
		APIKey:   "test-key",
		BaseURL:  "https://llm.example.com/",
		Protocol: protocol,
	}
}

func TestValidateRequest(t *testing.T) {
	p := NewGemini(&fakeBackend{})
	hot, cold, zero := 2.5, 0.7, 0

	tests := []struct {
		name    string
		req     mediaflow.TextRequest
		wantErr bool
	}{
		{"valid", mediaflow.TextRequest{Prompt: "hi", Temperature: &cold}, false},
		{"empty prompt", mediaflow.TextRequest{Prompt: " "}, true},
		{"temperature out of range", mediaflow.TextRequest{Prompt: "hi", Temperature: &hot}, true},
		{"zero max tokens", mediaflow.TextRequest{Prompt: "hi", MaxTokens: &zero}, true},
		{"empty file", mediaflow.TextRequest{Prompt: "hi", Files: []mediaflow.FileData{{MimeType: "image/png"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ValidateRequest(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildBackendParamsPerProtocol(t *testing.T) {
	backend := &fakeBackend{}
	req := &mediaflow.TextRequest{
		Prompt: "hi",
		Model:  "m",
		Files:  []mediaflow.FileData{{Data: "data:image/webp;base64,AAAA"}},
	}

	tests := []struct {
		provider *Provider
		verb     mediaflow.Verb
		baseURL  string
	}{
		{NewGemini(backend), mediaflow.VerbGeminiGenerateText, "https://llm.example.com/v1beta"},
		{NewOpenAIChat(backend), mediaflow.VerbOpenAIChatCompletion, "https://llm.example.com"},
		{NewOpenAIResponses(backend), mediaflow.VerbOpenAIResponses, "https://llm.example.com"},
		{NewClaude(backend), mediaflow.VerbClaudeChatCompletion, "https://llm.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.provider.ID(), func(t *testing.T) {
			params := tt.provider.BuildBackendParams(req, testConfig(tt.provider.Protocol()))
			if params.Verb() != tt.verb {
				t.Errorf("Expected %s, got %s", tt.verb, params.Verb())
			}

			var tp mediaflow.TextParams
			switch v := params.(type) {
			case mediaflow.GeminiTextParams:
				tp = v.TextParams
			case mediaflow.OpenAIChatParams:
				tp = v.TextParams
			case mediaflow.OpenAIResponsesParams:
				tp = v.TextParams
			case mediaflow.ClaudeMessagesParams:
				tp = v.TextParams
			default:
				t.Fatalf("Unexpected params %T", params)
			}
			if tp.BaseURL != tt.baseURL {
				t.Errorf("Unexpected base URL %s", tp.BaseURL)
			}
			if len(tp.Files) != 1 || tp.Files[0].Data != "AAAA" || tp.Files[0].MimeType != "image/webp" {
				t.Errorf("Expected the data URI header stripped, got %+v", tp.Files)
			}
		})
	}
}

func TestOpenAIProvidersUseStrictSchema(t *testing.T) {
	req := &mediaflow.TextRequest{
		Prompt: "hi",
		ResponseJSONSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"title": map[string]interface{}{"type": "string"}},
		},
	}

	chat := NewOpenAIChat(&fakeBackend{}).BuildBackendParams(req, testConfig(mediaflow.ProtocolOpenAI)).(mediaflow.OpenAIChatParams)
	if chat.ResponseJSONSchema["additionalProperties"] != false {
		t.Errorf("Expected a strict schema, got %v", chat.ResponseJSONSchema)
	}

	gemini := NewGemini(&fakeBackend{}).BuildBackendParams(req, testConfig(mediaflow.ProtocolGoogle)).(mediaflow.GeminiTextParams)
	if _, ok := gemini.ResponseJSONSchema["additionalProperties"]; ok {
		t.Errorf("Gemini schema should be passed through, got %v", gemini.ResponseJSONSchema)
	}
}

func TestGenerate(t *testing.T) {
	backend := &fakeBackend{env: &mediaflow.Envelope{Success: true, Text: "hello"}}
	p := NewClaude(backend)

	result, err := p.Generate(context.Background(), &mediaflow.TextRequest{Prompt: "hi", Model: "claude-x"}, testConfig(mediaflow.ProtocolClaude))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Content != "hello" || result.Model != "claude-x" {
		t.Errorf("Unexpected result %+v", result)
	}
	if len(backend.calls) != 1 {
		t.Errorf("Expected one backend call, got %d", len(backend.calls))
	}
}

func TestGenerateEmptyContent(t *testing.T) {
	p := NewOpenAIChat(&fakeBackend{env: &mediaflow.Envelope{Success: true}})

	_, err := p.Generate(context.Background(), &mediaflow.TextRequest{Prompt: "hi"}, testConfig(mediaflow.ProtocolOpenAI))
	var pe *mediaflow.ProviderError
	if !errors.As(err, &pe) || pe.Kind != mediaflow.ProviderErrorEmptyResult {
		t.Fatalf("Expected an empty_result error, got %v", err)
	}
}

func TestGenerateBackendError(t *testing.T) {
	p := NewOpenAIResponses(&fakeBackend{env: &mediaflow.Envelope{
		Error:      "API error (401): bad key",
		StatusCode: 401,
	}})

	_, err := p.Generate(context.Background(), &mediaflow.TextRequest{Prompt: "hi", Model: "m"}, testConfig(mediaflow.ProtocolOpenAIResponses))
	details := mediaflow.DetailsOf(err)
	if details == nil {
		t.Fatalf("Expected error details, got %v", err)
	}
	if details.StatusCode != 401 || details.RequestURL != "https://llm.example.com/v1/responses" {
		t.Errorf("Unexpected details %+v", details)
	}
}

func TestRegisterOneProviderPerProtocol(t *testing.T) {
	texts := mediaflow.NewTextRegistry(nil)
	Register(&fakeBackend{}, texts)

	for _, protocol := range []mediaflow.Protocol{
		mediaflow.ProtocolGoogle,
		mediaflow.ProtocolOpenAI,
		mediaflow.ProtocolOpenAIResponses,
		mediaflow.ProtocolClaude,
	} {
		p, ok := texts.GetByProtocol(protocol)
		if !ok {
			t.Errorf("No text provider for %s", protocol)
			continue
		}
		if p.Protocol() != protocol {
			t.Errorf("Protocol %s resolved to %s", protocol, p.ID())
		}
	}
}
