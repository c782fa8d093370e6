package mediaflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ProgressFunc receives every status observed while polling
type ProgressFunc func(info ProgressInfo)

// Videos returns the video provider registry
func (c *Client) Videos() *VideoRegistry {
	return c.videos
}

// pinnedVideoProviders lists node types that only one provider can serve,
// whatever the configured protocol or adapter.
var pinnedVideoProviders = map[NodeType]string{
	NodeVeoGenerator: ProviderVeo,
}

// VideoProvider resolves the provider configured on nodeType
func (c *Client) VideoProvider(nodeType NodeType) (VideoProvider, ProviderConfig, error) {
	cfg, err := c.ResolveConfig(nodeType)
	if err != nil {
		return nil, cfg, err
	}

	if id, ok := pinnedVideoProviders[nodeType]; ok {
		p, ok := c.videos.Get(id)
		if !ok {
			return nil, cfg, errors.Wrap(ErrProviderNotFound, id)
		}
		return p, cfg, nil
	}

	p, ok := lookup(c.videos, cfg)
	if !ok {
		return nil, cfg, &ConfigError{Kind: ConfigUnsupportedProtocol, NodeType: nodeType, Protocol: cfg.Protocol}
	}
	return p, cfg, nil
}

// CreateVideoTask creates a remote video task
func (c *Client) CreateVideoTask(ctx context.Context, nodeType NodeType, req *VideoRequest) (*VideoTask, error) {
	if req == nil {
		return nil, &ValidationError{Field: "request", Message: "request cannot be nil"}
	}

	p, cfg, err := c.VideoProvider(nodeType)
	if err != nil {
		return nil, err
	}

	c.logger.Info("creating video task",
		zap.String("provider", p.ID()),
		zap.String("nodeType", string(nodeType)),
		zap.String("model", req.Model))

	return p.CreateTask(ctx, req, cfg)
}

// GetVideoTaskStatus retrieves the current stage of a task
func (c *Client) GetVideoTaskStatus(ctx context.Context, nodeType NodeType, taskID string) (*VideoTask, error) {
	if taskID == "" {
		return nil, &ValidationError{Field: "taskId", Message: "task ID cannot be empty"}
	}

	p, cfg, err := c.VideoProvider(nodeType)
	if err != nil {
		return nil, err
	}
	return p.GetTaskStatus(ctx, taskID, cfg)
}

// GetVideoContent fetches the output of a task, which must be completed
func (c *Client) GetVideoContent(ctx context.Context, nodeType NodeType, taskID string) (*VideoContent, error) {
	task, err := c.GetVideoTaskStatus(ctx, nodeType, taskID)
	if err != nil {
		return nil, err
	}
	if task.Stage != StageCompleted {
		return nil, errors.Wrapf(ErrTaskNotReady, "task %s is %s", taskID, task.Stage)
	}

	p, cfg, err := c.VideoProvider(nodeType)
	if err != nil {
		return nil, err
	}
	return p.GetVideoContent(ctx, taskID, cfg)
}

// PollVideoTask polls a task until it reaches a terminal stage, ctx is
// cancelled or the attempt ceiling is exceeded.
func (c *Client) PollVideoTask(ctx context.Context, nodeType NodeType, taskID string, onProgress ProgressFunc) (*VideoTask, error) {
	p, cfg, err := c.VideoProvider(nodeType)
	if err != nil {
		return nil, err
	}
	return c.PollTask(ctx, p, cfg, taskID, onProgress)
}

// PollTask is PollVideoTask against an already resolved provider
func (c *Client) PollTask(ctx context.Context, p VideoProvider, cfg ProviderConfig, taskID string, onProgress ProgressFunc) (*VideoTask, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		task, err := p.GetTaskStatus(ctx, taskID, cfg)
		if err != nil {
			return nil, err
		}

		if onProgress != nil {
			onProgress(ProgressInfo{TaskID: taskID, Stage: task.Stage, Progress: task.Progress})
		}

		switch task.Stage {
		case StageCompleted:
			return &VideoTask{TaskID: taskID, Stage: StageCompleted, Progress: 100}, nil
		case StageFailed:
			return nil, NewTaskFailedError(task.Error)
		}

		if err := Sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}

	c.logger.Warn("video task polling timed out",
		zap.String("taskId", taskID),
		zap.Int("attempts", c.maxAttempts))
	return nil, ErrTimeout
}

// GenerateVideo creates a task, polls it to completion and fetches the content
func (c *Client) GenerateVideo(ctx context.Context, nodeType NodeType, req *VideoRequest, onProgress ProgressFunc) (*VideoContent, error) {
	task, err := c.CreateVideoTask(ctx, nodeType, req)
	if err != nil {
		return nil, err
	}
	if task.TaskID == "" {
		return nil, &ProviderError{Kind: ProviderErrorEmptyResult, Message: "backend returned no task id"}
	}

	if onProgress != nil {
		onProgress(ProgressInfo{TaskID: task.TaskID, Stage: StageQueued})
	}

	if _, err := c.PollVideoTask(ctx, nodeType, task.TaskID, onProgress); err != nil {
		return nil, err
	}

	p, cfg, err := c.VideoProvider(nodeType)
	if err != nil {
		return nil, err
	}
	return p.GetVideoContent(ctx, task.TaskID, cfg)
}

// VideoCapabilities returns the capabilities of the provider configured on nodeType
func (c *Client) VideoCapabilities(nodeType NodeType) (VideoCapabilities, error) {
	p, _, err := c.VideoProvider(nodeType)
	if err != nil {
		return VideoCapabilities{}, err
	}
	return p.Capabilities(), nil
}

// NewTaskFailedError reports a remote task that ended in the failed stage
func NewTaskFailedError(message string) *ProviderError {
	if message == "" {
		message = "video generation failed"
	}
	return &ProviderError{Kind: ProviderErrorTaskFailed, Message: message}
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It returns ErrCancelled when woken by ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}
