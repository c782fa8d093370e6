package httpexec

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"

	"github.com/feitianbubu/mediaflow"
)

const klingTokenTTL = 1800

// klingGenerationRequest is the body of Kling's create endpoints
type klingGenerationRequest struct {
	ModelName      string `json:"model_name,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Image          string `json:"image,omitempty"`
	ImageTail      string `json:"image_tail,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Duration       string `json:"duration,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
}

type klingResponse struct {
	Code      int           `json:"code"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id"`
	Data      klingTaskData `json:"data"`
}

type klingTaskData struct {
	TaskID        string           `json:"task_id"`
	TaskStatus    string           `json:"task_status"`
	TaskStatusMsg string           `json:"task_status_msg"`
	TaskResult    *klingTaskResult `json:"task_result,omitempty"`
}

type klingTaskResult struct {
	Videos []klingVideo `json:"videos,omitempty"`
}

type klingVideo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Duration string `json:"duration"`
}

func (e *Executor) klingCreate(ctx context.Context, p mediaflow.KlingCreateParams) (*mediaflow.Envelope, error) {
	body := klingGenerationRequest{
		ModelName: p.Model,
		Prompt:    p.Prompt,
		Image:     p.Image,
		ImageTail: p.ImageTail,
		Mode:      "std",
	}
	if p.Duration > 0 {
		body.Duration = strconv.Itoa(p.Duration)
	}
	if p.Width > 0 && p.Height > 0 {
		body.AspectRatio = getAspectRatio(p.Width, p.Height)
	}
	if p.Metadata != nil {
		body.NegativePrompt = p.Metadata.NegativePrompt
		if p.Metadata.QualityLevel == "pro" || p.Metadata.QualityLevel == "high" {
			body.Mode = "pro"
		}
	}

	url := fmt.Sprintf("%s/kling/v1/videos/%s", p.BaseURL, p.Mode)
	out, env, err := e.klingDo(ctx, http.MethodPost, url, p.APIKey, body)
	if env != nil || err != nil {
		return env, err
	}

	status := out.Data.TaskStatus
	if status == "" {
		status = "submitted"
	}
	return &mediaflow.Envelope{Success: true, TaskID: out.Data.TaskID, Status: status}, nil
}

func (e *Executor) klingStatus(ctx context.Context, p mediaflow.KlingStatusParams) (*mediaflow.Envelope, error) {
	url := fmt.Sprintf("%s/kling/v1/videos/%s/%s", p.BaseURL, p.Mode, p.TaskID)
	out, env, err := e.klingDo(ctx, http.MethodGet, url, p.APIKey, nil)
	if env != nil || err != nil {
		return env, err
	}

	result := &mediaflow.Envelope{
		Success: true,
		TaskID:  out.Data.TaskID,
		Status:  out.Data.TaskStatus,
	}
	if out.Data.TaskStatus == "failed" {
		result.Error = out.Data.TaskStatusMsg
	}
	if out.Data.TaskStatus == "succeed" {
		result.Progress = 100
	}
	return result, nil
}

func (e *Executor) klingContent(ctx context.Context, p mediaflow.KlingContentParams) (*mediaflow.Envelope, error) {
	url := fmt.Sprintf("%s/kling/v1/videos/%s/%s", p.BaseURL, p.Mode, p.TaskID)
	out, env, err := e.klingDo(ctx, http.MethodGet, url, p.APIKey, nil)
	if env != nil || err != nil {
		return env, err
	}

	result := &mediaflow.Envelope{Success: true, TaskID: out.Data.TaskID}
	if out.Data.TaskResult != nil && len(out.Data.TaskResult.Videos) > 0 {
		result.VideoURL = out.Data.TaskResult.Videos[0].URL
	}
	return result, nil
}

// klingDo performs a signed Kling call. A failed envelope is returned for
// HTTP errors and for non-zero Kling codes.
func (e *Executor) klingDo(ctx context.Context, method, url, apiKey string, body interface{}) (*klingResponse, *mediaflow.Envelope, error) {
	token, err := klingToken(apiKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create JWT token")
	}

	resp, err := e.makeRequest(ctx, method, url, bearer(token), body)
	if err != nil {
		return nil, nil, err
	}
	if !resp.ok() {
		return nil, resp.failure(), nil
	}

	var out klingResponse
	if env := resp.decode(&out); env != nil {
		return nil, env, nil
	}
	if out.Code != 0 {
		return nil, &mediaflow.Envelope{
			Error:        fmt.Sprintf("API error (%d): %s", out.Code, out.Message),
			StatusCode:   resp.status,
			ResponseBody: string(resp.body),
		}, nil
	}
	return &out, nil, nil
}

// klingToken signs a token when the key has the "access_key,secret_key"
// form. Any other key is used as a bearer token as is.
func klingToken(apiKey string) (string, error) {
	accessKey, secretKey, ok := strings.Cut(apiKey, ",")
	if !ok {
		return apiKey, nil
	}
	return createJWTTokenWithKeys(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey))
}

// createJWTTokenWithKeys creates JWT token with specific access and secret keys
func createJWTTokenWithKeys(accessKey, secretKey string) (string, error) {
	if accessKey == "" || secretKey == "" {
		return "", errors.New("access key and secret key are required")
	}

	now := time.Now().Unix()
	claims := jwt.MapClaims{
		"iss": accessKey,
		"exp": now + klingTokenTTL,
		"nbf": now - 5,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = "JWT"
	return token.SignedString([]byte(secretKey))
}

// getAspectRatio determines aspect ratio from width and height
func getAspectRatio(width, height int) string {
	ratio := float64(width) / float64(height)

	switch {
	case ratio > 1.5:
		return "16:9"
	case ratio < 0.7:
		return "9:16"
	default:
		return "1:1"
	}
}
