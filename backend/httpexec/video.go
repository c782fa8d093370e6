package httpexec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/feitianbubu/mediaflow"
)

type videoCreateRequest struct {
	Model      string `json:"model"`
	Prompt     string `json:"prompt"`
	Seconds    string `json:"seconds,omitempty"`
	Size       string `json:"size,omitempty"`
	InputImage string `json:"input_image,omitempty"`
}

// videoTaskResponse covers the task objects of OpenAI style video endpoints
type videoTaskResponse struct {
	ID       string          `json:"id"`
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Error    json.RawMessage `json:"error,omitempty"`
	URL      string          `json:"url,omitempty"`
	VideoURL string          `json:"video_url,omitempty"`
}

func (r *videoTaskResponse) id() string {
	if r.ID != "" {
		return r.ID
	}
	return r.TaskID
}

// errorMessage reads an error given either as a string or as {"message": ...}
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

func (e *Executor) videoCreate(ctx context.Context, p mediaflow.VideoCreateParams) (*mediaflow.Envelope, error) {
	body := videoCreateRequest{
		Model:      p.Model,
		Prompt:     p.Prompt,
		Seconds:    p.Seconds,
		Size:       p.Size,
		InputImage: p.InputImage,
	}
	return e.createTask(ctx, p.Credentials, "/v1/video/generations", body)
}

type veoCreateRequest struct {
	Model    string                 `json:"model"`
	Prompt   string                 `json:"prompt"`
	Images   []string               `json:"images,omitempty"`
	Metadata *mediaflow.VeoMetadata `json:"metadata,omitempty"`
}

func (e *Executor) veoCreate(ctx context.Context, p mediaflow.VeoCreateParams) (*mediaflow.Envelope, error) {
	body := veoCreateRequest{
		Model:    p.Model,
		Prompt:   p.Prompt,
		Images:   p.Images,
		Metadata: p.Metadata,
	}
	return e.createTask(ctx, p.Credentials, "/v1/videos", body)
}

func (e *Executor) createTask(ctx context.Context, creds mediaflow.Credentials, path string, body interface{}) (*mediaflow.Envelope, error) {
	resp, err := e.makeRequest(ctx, http.MethodPost, creds.BaseURL+path, bearer(creds.APIKey), body)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return resp.failure(), nil
	}

	var out videoTaskResponse
	if env := resp.decode(&out); env != nil {
		return env, nil
	}
	if out.id() == "" {
		return &mediaflow.Envelope{
			Error:        "response contains no task id",
			StatusCode:   resp.status,
			ResponseBody: string(resp.body),
		}, nil
	}

	status := out.Status
	if status == "" {
		status = string(mediaflow.StageQueued)
	}
	return &mediaflow.Envelope{
		Success:  true,
		TaskID:   out.id(),
		Status:   status,
		Progress: out.Progress,
	}, nil
}

func (e *Executor) videoStatus(ctx context.Context, creds mediaflow.Credentials, path string) (*mediaflow.Envelope, error) {
	resp, err := e.makeRequest(ctx, http.MethodGet, creds.BaseURL+path, bearer(creds.APIKey), nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return resp.failure(), nil
	}

	var out videoTaskResponse
	if env := resp.decode(&out); env != nil {
		return env, nil
	}
	return &mediaflow.Envelope{
		Success:  true,
		TaskID:   out.id(),
		Status:   out.Status,
		Progress: out.Progress,
		Error:    errorMessage(out.Error),
	}, nil
}

// videoContent fetches the rendered video. Binary bodies are base64 encoded;
// JSON bodies are expected to carry a URL.
func (e *Executor) videoContent(ctx context.Context, creds mediaflow.Credentials, path string) (*mediaflow.Envelope, error) {
	resp, err := e.makeRequest(ctx, http.MethodGet, creds.BaseURL+path, bearer(creds.APIKey), nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return resp.failure(), nil
	}

	if !isJSON(resp.contentType) {
		return &mediaflow.Envelope{
			Success:   true,
			VideoData: base64.StdEncoding.EncodeToString(resp.body),
		}, nil
	}

	var out videoTaskResponse
	if env := resp.decode(&out); env != nil {
		return env, nil
	}
	url := out.VideoURL
	if url == "" {
		url = out.URL
	}
	return &mediaflow.Envelope{Success: true, VideoURL: url}, nil
}
