package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/adapters/gemini"
	"github.com/feitianbubu/mediaflow/adapters/llm"
	"github.com/feitianbubu/mediaflow/adapters/sora"
	"github.com/feitianbubu/mediaflow/config"
	"github.com/feitianbubu/mediaflow/taskmanager"
	"github.com/feitianbubu/mediaflow/workspace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fakeBackend(ctx context.Context, params mediaflow.BackendParams) (*mediaflow.Envelope, error) {
	switch p := params.(type) {
	case mediaflow.ClaudeMessagesParams:
		if p.ResponseJSONSchema == nil {
			return &mediaflow.Envelope{Success: true, Text: "Slide 1: Intro"}, nil
		}
		if p.Prompt == "broken" {
			return &mediaflow.Envelope{Success: true, Text: "{\"slides\":"}, nil
		}
		return &mediaflow.Envelope{Success: true, Text: `{"slides":["Intro"]}`}, nil
	case mediaflow.GeminiGenerateParams:
		return &mediaflow.Envelope{Success: true, ImageData: "IMG"}, nil
	case mediaflow.VideoCreateParams:
		return &mediaflow.Envelope{Success: true, TaskID: "video_1", Status: "queued"}, nil
	case mediaflow.VideoStatusParams:
		return &mediaflow.Envelope{Success: true, Status: "in_progress", Progress: 30}, nil
	}
	return &mediaflow.Envelope{Error: "unexpected verb"}, nil
}

type testEnv struct {
	server *Server
	memory *workspace.Memory
	tasks  *taskmanager.Manager
}

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()

	backend := mediaflow.BackendFunc(fakeBackend)
	images := mediaflow.NewImageRegistry(nil)
	images.Register(gemini.New(backend))
	videos := mediaflow.NewVideoRegistry(nil)
	videos.Register(sora.New(backend))
	texts := mediaflow.NewTextRegistry(nil)
	llm.Register(backend, texts)

	resolver := mediaflow.StaticResolver{
		NodeProviders: map[mediaflow.NodeType]string{
			mediaflow.NodeImageGeneratorPro: "g",
			mediaflow.NodeVideoGenerator:    "s",
			mediaflow.NodeLLM:               "c",
		},
		Providers: map[string]mediaflow.ProviderConfig{
			"g": {APIKey: "k", BaseURL: "https://g.example.com", Protocol: mediaflow.ProtocolGoogle},
			"s": {APIKey: "k", BaseURL: "https://s.example.com", Protocol: mediaflow.ProtocolOpenAI},
			"c": {APIKey: "k", BaseURL: "https://c.example.com", Protocol: mediaflow.ProtocolClaude},
		},
	}
	client := mediaflow.NewClient(images, videos, resolver,
		mediaflow.WithPolling(time.Hour, 10),
		mediaflow.WithTextRegistry(texts))

	memory := workspace.NewMemory()
	tasks := taskmanager.New(client, memory, memory, taskmanager.WithCleanupSpec(""))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tasks.Shutdown(ctx)
	})

	return &testEnv{
		server: New(client, tasks, memory, cfg, nil),
		memory: memory,
		tasks:  tasks,
	}
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestGenerateImage(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(http.MethodPost, "/api/images/generate", gin.H{
		"nodeType": "imageGeneratorPro",
		"request":  gin.H{"prompt": "a cat", "model": "gemini-img"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp mediaflow.ImageResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ImageData != "IMG" || resp.Error != "" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestGenerateImageErrors(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	tests := []struct {
		name     string
		nodeType string
		prompt   string
		code     int
		kind     string
	}{
		{"empty prompt", "imageGeneratorPro", "  ", http.StatusBadRequest, "validation"},
		{"unmapped node", "imageGeneratorFast", "a cat", http.StatusUnprocessableEntity, "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/images/generate", gin.H{
				"nodeType": tt.nodeType,
				"request":  gin.H{"prompt": tt.prompt, "model": "m"},
			}, nil)
			if w.Code != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, w.Code)
			}
			var resp mediaflow.ImageResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.ErrorKind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, resp.ErrorKind)
			}
		})
	}
}

func TestGenerateText(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	schema := gin.H{"type": "object", "properties": gin.H{"slides": gin.H{"type": "array"}}}

	tests := []struct {
		name    string
		request gin.H
		code    int
		check   func(t *testing.T, resp mediaflow.TextResponse)
	}{
		{
			name:    "plain text",
			request: gin.H{"prompt": "outline", "model": "claude-x"},
			code:    http.StatusOK,
			check: func(t *testing.T, resp mediaflow.TextResponse) {
				if resp.Content != "Slide 1: Intro" || resp.Data != nil {
					t.Errorf("Unexpected response %+v", resp)
				}
			},
		},
		{
			name:    "structured output",
			request: gin.H{"prompt": "outline", "model": "claude-x", "responseJsonSchema": schema},
			code:    http.StatusOK,
			check: func(t *testing.T, resp mediaflow.TextResponse) {
				data, ok := resp.Data.(map[string]interface{})
				if !ok || data["slides"] == nil {
					t.Errorf("Expected parsed data, got %+v", resp)
				}
			},
		},
		{
			name:    "invalid structured output",
			request: gin.H{"prompt": "broken", "model": "claude-x", "responseJsonSchema": schema},
			code:    http.StatusBadGateway,
			check: func(t *testing.T, resp mediaflow.TextResponse) {
				if resp.ErrorKind != "invalid_output" || resp.Content == "" {
					t.Errorf("Expected the raw content with an error, got %+v", resp)
				}
			},
		},
		{
			name:    "empty prompt",
			request: gin.H{"prompt": "", "model": "claude-x"},
			code:    http.StatusBadRequest,
			check: func(t *testing.T, resp mediaflow.TextResponse) {
				if resp.ErrorKind != "validation" {
					t.Errorf("Expected a validation error, got %+v", resp)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/text/generate", gin.H{"nodeType": "llm", "request": tt.request}, nil)
			if w.Code != tt.code {
				t.Fatalf("Expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			var resp mediaflow.TextResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			tt.check(t, resp)
		})
	}
}

func TestVideoTaskLifecycle(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(http.MethodPost, "/api/videos/tasks", gin.H{
		"nodeType": "videoGenerator",
		"canvasId": "c1",
		"nodeId":   "n1",
		"request":  gin.H{"prompt": "waves", "model": "sora-2"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var created createVideoTaskResponse
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.TaskID != "video_1" || created.Task == nil || created.Task.Status != taskmanager.StatusRunning {
		t.Fatalf("Unexpected response %s", w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/canvases/c1/nodes/n1/task", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected task to be tracked, got %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/tasks?canvasId=c1", nil, nil)
	var list []taskmanager.TaskInfo
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 task, got %d", len(list))
	}

	w = env.do(http.MethodDelete, "/api/canvases/c1/nodes/n1/task", nil, nil)
	var cancelled taskmanager.TaskInfo
	json.Unmarshal(w.Body.Bytes(), &cancelled)
	if w.Code != http.StatusOK || cancelled.Status != taskmanager.StatusCancelled {
		t.Errorf("Unexpected cancel response %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodDelete, "/api/canvases/c1/nodes/n1/task", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after cancel, got %d", w.Code)
	}
}

func TestVideoContentNotReady(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(http.MethodGet, "/api/videos/tasks/video_1/content", nil, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUnsupportedVideoNode(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(http.MethodPost, "/api/videos/tasks", gin.H{
		"nodeType": "imageGeneratorPro",
		"request":  gin.H{"prompt": "waves"},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestSetActiveCanvas(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	w := env.do(http.MethodPut, "/api/workspace/active", gin.H{"canvasId": "c7"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if env.memory.ActiveCanvasID() != "c7" {
		t.Errorf("Expected c7 active, got %s", env.memory.ActiveCanvasID())
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{APIKey: "secret"})

	if w := env.do(http.MethodGet, "/api/tasks", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/tasks", nil, map[string]string{"API-KEY": "secret"}); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with key, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Health check must not need a key, got %d", w.Code)
	}
}
