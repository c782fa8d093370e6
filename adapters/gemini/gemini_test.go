package gemini

import (
	"context"
	"errors"
	"strings"
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

var testConfig = mediaflow.ProviderConfig{
	Name:     "my-gemini",
	APIKey:   "test-key",
	BaseURL:  "https://gemini.example.com/",
	Protocol: mediaflow.ProtocolGoogle,
}

func TestValidateRequest(t *testing.T) {
	p := New(&fakeBackend{})

	tests := []struct {
		name    string
		req     mediaflow.ImageRequest
		wantErr bool
	}{
		{"valid", mediaflow.ImageRequest{Prompt: "a cat", AspectRatio: "16:9", ImageSize: "2K"}, false},
		{"empty prompt", mediaflow.ImageRequest{Prompt: ""}, true},
		{"whitespace prompt", mediaflow.ImageRequest{Prompt: "  \n\t"}, true},
		{"bad aspect ratio", mediaflow.ImageRequest{Prompt: "a cat", AspectRatio: "7:3"}, true},
		{"bad image size", mediaflow.ImageRequest{Prompt: "a cat", ImageSize: "8K"}, true},
		{"too many images", mediaflow.ImageRequest{Prompt: "a cat", InputImages: make([]string, 11)}, true},
		{"max images", mediaflow.ImageRequest{Prompt: "a cat", InputImages: make([]string, 10)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ValidateRequest(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !mediaflow.IsValidationError(err) {
				t.Errorf("Expected a validation error, got %T", err)
			}
		})
	}
}

func TestGenerateRejectsEmptyPromptWithoutNetwork(t *testing.T) {
	backend := &fakeBackend{env: &mediaflow.Envelope{Success: true, ImageData: "AAAA"}}
	p := New(backend)

	_, err := p.Generate(context.Background(), &mediaflow.ImageRequest{Prompt: "   "}, testConfig)
	if !mediaflow.IsValidationError(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("Expected no backend call, got %d", len(backend.calls))
	}
}

func TestBuildBackendParams(t *testing.T) {
	p := New(&fakeBackend{})

	params := p.BuildBackendParams(&mediaflow.ImageRequest{
		Prompt:      "a cat",
		Model:       "gemini-image",
		InputImages: []string{"data:image/jpeg;base64,AAAA", "BBBB"},
	}, testConfig)

	gp, ok := params.(mediaflow.GeminiGenerateParams)
	if !ok {
		t.Fatalf("Expected GeminiGenerateParams, got %T", params)
	}
	if gp.Verb() != mediaflow.VerbGeminiGenerateContent {
		t.Errorf("Unexpected verb %s", gp.Verb())
	}
	if gp.BaseURL != "https://gemini.example.com/v1beta" {
		t.Errorf("Unexpected base URL %s", gp.BaseURL)
	}
	if gp.AspectRatio != "1:1" {
		t.Errorf("Expected default aspect ratio 1:1, got %s", gp.AspectRatio)
	}
	if len(gp.InputImages) != 2 {
		t.Fatalf("Expected 2 images, got %v", gp.InputImages)
	}
	if gp.InputImages[0].MimeType != "image/jpeg" || gp.InputImages[0].Base64 != "AAAA" {
		t.Errorf("Expected the jpeg type to survive, got %+v", gp.InputImages[0])
	}
	if gp.InputImages[1].MimeType != "image/png" || gp.InputImages[1].Base64 != "BBBB" {
		t.Errorf("Expected png for a bare payload, got %+v", gp.InputImages[1])
	}
}

func TestGenerateSalvagesImageFromText(t *testing.T) {
	backend := &fakeBackend{env: &mediaflow.Envelope{
		Success: true,
		Text:    "here you go data:image/png;base64,SALVAGED== done",
	}}
	p := New(backend)

	result, err := p.Generate(context.Background(), &mediaflow.ImageRequest{Prompt: "a cat", Model: "m"}, testConfig)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.ImageData != "SALVAGED==" {
		t.Errorf("Expected salvaged payload, got '%s'", result.ImageData)
	}
	if result.Model != "m" {
		t.Errorf("Expected model 'm', got '%s'", result.Model)
	}
}

func TestGenerateEmptyResult(t *testing.T) {
	p := New(&fakeBackend{env: &mediaflow.Envelope{Success: true, Text: "sorry"}})

	_, err := p.Generate(context.Background(), &mediaflow.ImageRequest{Prompt: "a cat"}, testConfig)
	var pe *mediaflow.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if pe.Kind != mediaflow.ProviderErrorEmptyResult {
		t.Errorf("Expected empty_result kind, got %s", pe.Kind)
	}
}

func TestGenerateBackendError(t *testing.T) {
	p := New(&fakeBackend{env: &mediaflow.Envelope{
		Error:        "API error (429): quota exceeded",
		StatusCode:   429,
		ResponseBody: `{"error":{"message":"quota exceeded"}}`,
	}})

	req := &mediaflow.ImageRequest{Prompt: strings.Repeat("p", 600), Model: "gemini-image"}
	_, err := p.Generate(context.Background(), req, testConfig)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if err.Error() != "API error (429): quota exceeded" {
		t.Errorf("Message should be kept verbatim, got '%s'", err.Error())
	}

	details := mediaflow.DetailsOf(err)
	if details == nil {
		t.Fatal("Expected error details")
	}
	if details.StatusCode != 429 {
		t.Errorf("Expected status 429, got %d", details.StatusCode)
	}
	if details.RequestURL != "https://gemini.example.com/v1beta/models/gemini-image:generateContent" {
		t.Errorf("Unexpected request URL %s", details.RequestURL)
	}
	if details.Provider != "my-gemini" {
		t.Errorf("Unexpected provider %s", details.Provider)
	}
	body, ok := details.ResponseBody.(map[string]interface{})
	if !ok || body["error"] == nil {
		t.Errorf("Expected parsed JSON response body, got %#v", details.ResponseBody)
	}
	reqBody := details.RequestBody.(map[string]interface{})
	if got := reqBody["prompt"].(string); len(got) != 500 {
		t.Errorf("Expected prompt truncated to 500 chars, got %d", len(got))
	}
	if details.Stack == "" {
		t.Error("Expected a stack trace")
	}
}

func TestGenerateCancelled(t *testing.T) {
	backend := &fakeBackend{env: &mediaflow.Envelope{Success: true, ImageData: "AAAA"}}
	p := New(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, &mediaflow.ImageRequest{Prompt: "a cat"}, testConfig)
	if !errors.Is(err, mediaflow.ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("Expected no backend call, got %d", len(backend.calls))
	}
}

func TestGenerateDiscardsResultAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := mediaflow.BackendFunc(func(context.Context, mediaflow.BackendParams) (*mediaflow.Envelope, error) {
		cancel()
		return &mediaflow.Envelope{Success: true, ImageData: "AAAA"}, nil
	})

	_, err := New(backend).Generate(ctx, &mediaflow.ImageRequest{Prompt: "a cat"}, testConfig)
	if !errors.Is(err, mediaflow.ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
}
