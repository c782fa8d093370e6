package httpexec

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/feitianbubu/mediaflow"
)

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string          `json:"responseModalities"`
	ImageConfig        geminiImageConfig `json:"imageConfig"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// geminiGenerate calls generateContent. BaseURL already carries the API version.
func (e *Executor) geminiGenerate(ctx context.Context, p mediaflow.GeminiGenerateParams) (*mediaflow.Envelope, error) {
	parts := []geminiPart{{Text: p.Prompt}}
	for _, img := range p.InputImages {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Base64}})
	}

	body := geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        geminiImageConfig{AspectRatio: p.AspectRatio, ImageSize: p.ImageSize},
		},
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

	env := &mediaflow.Envelope{Success: true}
	if len(out.Candidates) > 0 {
		for _, part := range out.Candidates[0].Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				env.ImageData = part.InlineData.Data
			} else if part.Text != "" {
				env.Text = part.Text
			}
		}
	}
	return env, nil
}

type imageGenerationRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	N              int      `json:"n"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Image          []string `json:"image,omitempty"`
	ResponseFormat string   `json:"response_format"`
}

type imageGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// dalleGenerate calls an OpenAI style images endpoint. A URL-only result is
// downloaded so the caller always gets base64 data when the image exists.
func (e *Executor) dalleGenerate(ctx context.Context, p mediaflow.DalleGenerateParams) (*mediaflow.Envelope, error) {
	body := imageGenerationRequest{
		Model:          p.Model,
		Prompt:         p.Prompt,
		N:              1,
		AspectRatio:    p.AspectRatio,
		NegativePrompt: p.NegativePrompt,
		Image:          p.InputImages,
		ResponseFormat: "b64_json",
	}

	resp, err := e.makeRequest(ctx, http.MethodPost, p.BaseURL+"/v1/images/generations", bearer(p.APIKey), body)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return resp.failure(), nil
	}

	var out imageGenerationResponse
	if env := resp.decode(&out); env != nil {
		return env, nil
	}

	env := &mediaflow.Envelope{Success: true}
	if len(out.Data) == 0 {
		return env, nil
	}
	item := out.Data[0]
	env.ImageData = item.B64JSON
	env.ImageURL = item.URL
	env.RevisedPrompt = item.RevisedPrompt

	if env.ImageData == "" && env.ImageURL != "" {
		img, err := e.makeRequest(ctx, http.MethodGet, env.ImageURL, nil, nil)
		if err == nil && img.ok() {
			env.ImageData = base64.StdEncoding.EncodeToString(img.body)
		}
	}
	return env, nil
}
