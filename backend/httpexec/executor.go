// Package httpexec is a mediaflow.Backend performing the vendor HTTP calls
// for every backend verb. The OpenAI and Claude chat verbs go through the
// vendor SDKs, sharing the executor's HTTP client.
package httpexec

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultUserAgent = "mediaflow/1.0"

	// maxErrorBody bounds how much of an error response is kept
	maxErrorBody = 64 << 10
)

// Executor implements mediaflow.Backend over net/http
type Executor struct {
	client    *http.Client
	logger    *zap.Logger
	userAgent string
}

// Option configures an Executor
type Option func(*Executor)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout sets the timeout of every request
func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an executor
func New(opts ...Option) *Executor {
	e := &Executor{
		client:    &http.Client{Timeout: defaultTimeout},
		logger:    zap.NewNop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke executes one backend verb
func (e *Executor) Invoke(ctx context.Context, params mediaflow.BackendParams) (*mediaflow.Envelope, error) {
	switch p := params.(type) {
	case mediaflow.GeminiGenerateParams:
		return e.geminiGenerate(ctx, p)
	case mediaflow.DalleGenerateParams:
		return e.dalleGenerate(ctx, p)
	case mediaflow.VideoCreateParams:
		return e.videoCreate(ctx, p)
	case mediaflow.VideoStatusParams:
		return e.videoStatus(ctx, p.Credentials, "/v1/video/generations/"+p.TaskID)
	case mediaflow.VideoContentParams:
		return e.videoContent(ctx, p.Credentials, "/v1/video/generations/"+p.TaskID+"/content")
	case mediaflow.KlingCreateParams:
		return e.klingCreate(ctx, p)
	case mediaflow.KlingStatusParams:
		return e.klingStatus(ctx, p)
	case mediaflow.KlingContentParams:
		return e.klingContent(ctx, p)
	case mediaflow.KlingDownloadParams:
		return e.download(ctx, p.VideoURL)
	case mediaflow.VeoCreateParams:
		return e.veoCreate(ctx, p)
	case mediaflow.VeoStatusParams:
		return e.videoStatus(ctx, p.Credentials, "/v1/videos/"+p.TaskID)
	case mediaflow.VeoContentParams:
		return e.videoContent(ctx, p.Credentials, "/v1/videos/"+p.TaskID+"/content")
	case mediaflow.GeminiTextParams:
		return e.geminiGenerateText(ctx, p)
	case mediaflow.OpenAIChatParams:
		return e.openAIChat(ctx, p)
	case mediaflow.OpenAIResponsesParams:
		return e.openAIResponses(ctx, p)
	case mediaflow.ClaudeMessagesParams:
		return e.claudeMessages(ctx, p)
	default:
		return nil, errors.Errorf("unsupported backend verb: %s", params.Verb())
	}
}

// response is a completed HTTP exchange
type response struct {
	status      int
	contentType string
	body        []byte
}

// makeRequest sends a request with a JSON body and reads the whole response.
// Only transport failures are returned as errors.
func (e *Executor) makeRequest(ctx context.Context, method, url string, headers map[string]string, body interface{}) (*response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", e.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	e.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// failure turns a non-2xx response into a failed envelope
func (r *response) failure() *mediaflow.Envelope {
	body := r.body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	text := string(body)
	return &mediaflow.Envelope{
		Error:        fmt.Sprintf("API error (%d): %s", r.status, text),
		StatusCode:   r.status,
		ResponseBody: text,
	}
}

// decode parses a JSON body into out, reporting a malformed body as a failed envelope
func (r *response) decode(out interface{}) *mediaflow.Envelope {
	if err := json.Unmarshal(r.body, out); err != nil {
		return &mediaflow.Envelope{
			Error:        "failed to parse response: " + err.Error(),
			StatusCode:   r.status,
			ResponseBody: string(r.body),
		}
	}
	return nil
}

func bearer(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

// download fetches a media URL and returns it base64 encoded as video data
func (e *Executor) download(ctx context.Context, url string) (*mediaflow.Envelope, error) {
	resp, err := e.makeRequest(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return resp.failure(), nil
	}
	return &mediaflow.Envelope{
		Success:   true,
		VideoData: base64.StdEncoding.EncodeToString(resp.body),
		VideoURL:  url,
	}, nil
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}
