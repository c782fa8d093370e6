package mediaflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Common errors
var (
	ErrCancelled        = errors.New("cancelled")
	ErrTimeout          = errors.New("video task timed out, please retry later")
	ErrTaskNotReady     = errors.New("video task is not completed yet")
	ErrProviderNotFound = errors.New("provider not found")
)

// maxRequestBodyPrompt bounds the prompt copied into diagnostics
const maxRequestBodyPrompt = 500

// ValidationError represents a request validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ConfigErrorKind tells configuration failures apart
type ConfigErrorKind string

const (
	ConfigMissingMapping      ConfigErrorKind = "missing_mapping"
	ConfigMissingProvider     ConfigErrorKind = "missing_provider"
	ConfigMissingAPIKey       ConfigErrorKind = "missing_api_key"
	ConfigUnsupportedProtocol ConfigErrorKind = "unsupported_protocol"
)

// ConfigError is returned before dispatch when no usable provider is configured
type ConfigError struct {
	Kind     ConfigErrorKind `json:"kind"`
	NodeType NodeType        `json:"nodeType,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Protocol Protocol        `json:"protocol,omitempty"`
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case ConfigMissingMapping:
		return fmt.Sprintf("no provider configured for node type %s", e.NodeType)
	case ConfigMissingProvider:
		return fmt.Sprintf("provider %s does not exist, please reconfigure it", e.Provider)
	case ConfigMissingAPIKey:
		return fmt.Sprintf("API key of provider %s is not configured", e.Provider)
	case ConfigUnsupportedProtocol:
		return fmt.Sprintf("unsupported protocol: %s, please check the provider configuration", e.Protocol)
	}
	return "invalid provider configuration"
}

// ProviderErrorKind tells provider failures apart
type ProviderErrorKind string

const (
	// ProviderErrorBackend is a transport or remote API failure
	ProviderErrorBackend ProviderErrorKind = "backend"
	// ProviderErrorEmptyResult is a success envelope without a usable payload
	ProviderErrorEmptyResult ProviderErrorKind = "empty_result"
	// ProviderErrorTaskFailed is a remote task that ended in the failed stage
	ProviderErrorTaskFailed ProviderErrorKind = "task_failed"
)

// ProviderError is a failure reported at the provider boundary
type ProviderError struct {
	Kind    ProviderErrorKind `json:"kind"`
	Message string            `json:"message"`
	Details *ErrorDetails     `json:"details,omitempty"`
	cause   error
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.cause
}

// ErrorDetails is the diagnostic envelope attached to provider failures
type ErrorDetails struct {
	Name         string      `json:"name"`
	Message      string      `json:"message"`
	Stack        string      `json:"stack,omitempty"`
	Cause        string      `json:"cause,omitempty"`
	StatusCode   int         `json:"statusCode,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Model        string      `json:"model"`
	Provider     string      `json:"provider"`
	RequestURL   string      `json:"requestUrl"`
	RequestBody  interface{} `json:"requestBody,omitempty"`
	ResponseBody interface{} `json:"responseBody,omitempty"`
}

// RequestMeta identifies the request a failure belongs to
type RequestMeta struct {
	Model       string
	Provider    string
	RequestURL  string
	RequestBody map[string]interface{}
}

// NewBackendError converts a failed backend call into a ProviderError.
// Exactly one of env (non-success envelope) and err (invoke failure) is expected.
func NewBackendError(env *Envelope, err error, meta RequestMeta) *ProviderError {
	details := &ErrorDetails{
		Name:       "BackendError",
		Timestamp:  time.Now(),
		Model:      orUnknown(meta.Model),
		Provider:   orUnknown(meta.Provider),
		RequestURL: orUnknown(meta.RequestURL),
	}
	if meta.RequestBody != nil {
		details.RequestBody = meta.RequestBody
	}

	if err == nil {
		message := "request failed"
		if env != nil {
			if env.Error != "" {
				message = env.Error
			}
			details.StatusCode = env.StatusCode
			details.ResponseBody = parseResponseBody(env.ResponseBody)
		}
		err = errors.New(message)
	} else if cause := errors.Cause(err); cause != err {
		details.Cause = cause.Error()
	}

	details.Message = err.Error()
	details.Stack = stackOf(err)

	return &ProviderError{
		Kind:    ProviderErrorBackend,
		Message: details.Message,
		Details: details,
		cause:   err,
	}
}

// NewEmptyResultError reports a success envelope that carried nothing usable
func NewEmptyResultError(name, message string, meta RequestMeta, responseBody interface{}) *ProviderError {
	return &ProviderError{
		Kind:    ProviderErrorEmptyResult,
		Message: message,
		Details: &ErrorDetails{
			Name:         name,
			Message:      message,
			Timestamp:    time.Now(),
			Model:        orUnknown(meta.Model),
			Provider:     orUnknown(meta.Provider),
			RequestURL:   orUnknown(meta.RequestURL),
			ResponseBody: responseBody,
		},
	}
}

// DetailsOf returns the diagnostic envelope carried by err, if any
func DetailsOf(err error) *ErrorDetails {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Details
	}
	return nil
}

// IsCancelled reports whether err is a cancellation rather than a failure
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsValidationError reports whether err is a local validation failure
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TruncatePrompt shortens a prompt for diagnostics
func TruncatePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxRequestBodyPrompt {
		return prompt
	}
	return string(runes[:maxRequestBodyPrompt])
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func stackOf(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		return strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
	}
	return strings.TrimSpace(fmt.Sprintf("%+v", errors.WithStack(err).(stackTracer).StackTrace()))
}

func parseResponseBody(body string) interface{} {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		return parsed
	}
	return body
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
