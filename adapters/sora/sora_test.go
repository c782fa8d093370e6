package sora

import (
	"context"
	"testing"

	"github.com/feitianbubu/mediaflow"
)

type fakeBackend struct {
	calls []mediaflow.BackendParams
	env   *mediaflow.Envelope
}

func (f *fakeBackend) Invoke(ctx context.Context, params mediaflow.BackendParams) (*mediaflow.Envelope, error) {
	f.calls = append(f.calls, params)
	return f.env, nil
}

var testConfig = mediaflow.ProviderConfig{
	Name:     "sora-gw",
	APIKey:   "test-key",
	BaseURL:  "https://sora.example.com/",
	Protocol: mediaflow.ProtocolOpenAI,
}

func TestValidateRequest(t *testing.T) {
	p := New(&fakeBackend{})

	tests := []struct {
		name    string
		req     mediaflow.VideoRequest
		wantErr bool
	}{
		{"valid", mediaflow.VideoRequest{Prompt: "waves", Size: "1280x720", Duration: 10}, false},
		{"empty prompt", mediaflow.VideoRequest{Prompt: " "}, true},
		{"bad size", mediaflow.VideoRequest{Prompt: "waves", Size: "640x480"}, true},
		{"bad duration", mediaflow.VideoRequest{Prompt: "waves", Duration: 5}, true},
		{"two images", mediaflow.VideoRequest{Prompt: "waves", Images: []string{"A", "B"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ValidateRequest(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateTask(t *testing.T) {
	backend := &fakeBackend{env: &mediaflow.Envelope{Success: true, TaskID: "video_123", Status: "queued"}}
	p := New(backend)

	task, err := p.CreateTask(context.Background(), &mediaflow.VideoRequest{
		Prompt:   "waves",
		Model:    "sora-2",
		Duration: 15,
		Images:   []string{"data:image/png;base64,AAAA"},
	}, testConfig)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.TaskID != "video_123" || task.Stage != mediaflow.StageQueued {
		t.Errorf("Unexpected task %+v", task)
	}

	params := backend.calls[0].(mediaflow.VideoCreateParams)
	if params.Seconds != "15" {
		t.Errorf("Expected seconds '15', got '%s'", params.Seconds)
	}
	if params.InputImage != "AAAA" {
		t.Errorf("Expected raw base64 input image, got '%s'", params.InputImage)
	}
	if params.BaseURL != "https://sora.example.com" {
		t.Errorf("Unexpected base URL %s", params.BaseURL)
	}
}

func TestCreateTaskFailureCarriesURL(t *testing.T) {
	p := New(&fakeBackend{env: &mediaflow.Envelope{Error: "API error (500): boom", StatusCode: 500, ResponseBody: "boom"}})

	_, err := p.CreateTask(context.Background(), &mediaflow.VideoRequest{Prompt: "waves", Model: "sora-2"}, testConfig)
	details := mediaflow.DetailsOf(err)
	if details == nil {
		t.Fatalf("Expected error details, got %v", err)
	}
	if details.RequestURL != "https://sora.example.com/v1/video/generations" {
		t.Errorf("Unexpected request URL %s", details.RequestURL)
	}
	if details.ResponseBody != "boom" {
		t.Errorf("Expected raw response body, got %#v", details.ResponseBody)
	}
}

func TestGetTaskStatusMapsStages(t *testing.T) {
	tests := map[string]mediaflow.TaskStage{
		"queued":      mediaflow.StageQueued,
		"in_progress": mediaflow.StageInProgress,
		"processing":  mediaflow.StageInProgress,
		"completed":   mediaflow.StageCompleted,
		"succeeded":   mediaflow.StageCompleted,
		"failed":      mediaflow.StageFailed,
	}

	for status, want := range tests {
		p := New(&fakeBackend{env: &mediaflow.Envelope{Success: true, Status: status, Progress: 42}})
		task, err := p.GetTaskStatus(context.Background(), "video_123", testConfig)
		if err != nil {
			t.Fatalf("GetTaskStatus(%s) failed: %v", status, err)
		}
		if task.Stage != want {
			t.Errorf("Status %s: expected %s, got %s", status, want, task.Stage)
		}
		if task.TaskID != "video_123" || task.Progress != 42 {
			t.Errorf("Unexpected task %+v", task)
		}
	}
}

func TestGetVideoContent(t *testing.T) {
	p := New(&fakeBackend{env: &mediaflow.Envelope{Success: true, VideoData: "VIDEO"}})

	content, err := p.GetVideoContent(context.Background(), "video_123", testConfig)
	if err != nil {
		t.Fatalf("GetVideoContent failed: %v", err)
	}
	if content.VideoData != "VIDEO" {
		t.Errorf("Unexpected content %+v", content)
	}
}
