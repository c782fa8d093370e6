package taskmanager

import (
	"context"

	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/workspace"
)

// driver polls one remote task until it is terminal, reporting every status
type driver func(ctx context.Context, taskID string, onProgress mediaflow.ProgressFunc) error

func (m *Manager) driveVideo(ctx context.Context, taskID string, onProgress mediaflow.ProgressFunc) error {
	_, err := m.client.PollVideoTask(ctx, mediaflow.NodeVideoGenerator, taskID, onProgress)
	return err
}

// driveVeo polls with the Veo node configuration, which always resolves to
// the Veo provider.
func (m *Manager) driveVeo(ctx context.Context, taskID string, onProgress mediaflow.ProgressFunc) error {
	_, err := m.client.PollVideoTask(ctx, mediaflow.NodeVeoGenerator, taskID, onProgress)
	return err
}

func (m *Manager) run(ctx context.Context, key string, info TaskInfo, drive driver) {
	defer m.wg.Done()

	err := drive(ctx, info.TaskID, func(p mediaflow.ProgressInfo) {
		m.onProgress(ctx, key, info.RunID, p)
	})

	switch {
	case err == nil:
		m.apply(ctx, key, info.RunID, func(t *TaskInfo) {
			t.Status = StatusCompleted
			t.Stage = mediaflow.StageCompleted
			t.Progress = 100
		}, workspace.ProgressPatch(workspace.NodeSuccess, 100, string(mediaflow.StageCompleted), info.TaskID))
		m.logger.Info("task completed", zap.String("taskId", info.TaskID), zap.String("runId", info.RunID))

	case ctx.Err() != nil || mediaflow.IsCancelled(err):
		m.logger.Debug("task driver stopped", zap.String("taskId", info.TaskID), zap.String("runId", info.RunID))

	default:
		message := err.Error()
		m.apply(ctx, key, info.RunID, func(t *TaskInfo) {
			t.Status = StatusFailed
			t.Stage = mediaflow.StageFailed
			t.Error = message
		}, workspace.ErrorPatch(message))
		m.logger.Error("task failed",
			zap.String("taskId", info.TaskID),
			zap.String("runId", info.RunID),
			zap.Error(err))
	}
}

func (m *Manager) onProgress(ctx context.Context, key, runID string, p mediaflow.ProgressInfo) {
	progress := p.Progress
	nodeStatus := workspace.NodeLoading
	switch p.Stage {
	case mediaflow.StageCompleted:
		progress = 100
		nodeStatus = workspace.NodeSuccess
	case mediaflow.StageFailed:
		nodeStatus = workspace.NodeError
	}

	m.apply(ctx, key, runID, func(t *TaskInfo) {
		t.Stage = p.Stage
		t.Progress = progress
		if p.Stage == mediaflow.StageCompleted {
			t.Status = StatusCompleted
		}
	}, workspace.ProgressPatch(nodeStatus, progress, string(p.Stage), p.TaskID))
}

// apply updates the task and writes patch to the owning node. Updates from a
// replaced or cancelled run, and updates after a terminal status, are dropped.
// Only the node's key lock is held during the write.
func (m *Manager) apply(ctx context.Context, key, runID string, update func(*TaskInfo), patch workspace.NodePatch) {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	e, ok := m.tasks[key]
	if !ok || e.info.RunID != runID || ctx.Err() != nil || e.info.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	update(&e.info)
	info := e.info
	m.mu.Unlock()

	m.sync(info, patch)
}

// sync writes the patch to the live canvas when it is the owner, and
// always to the backing store.
func (m *Manager) sync(info TaskInfo, patch workspace.NodePatch) {
	if m.live != nil && m.live.ActiveCanvasID() == info.CanvasID {
		m.live.UpdateNodeData(info.NodeID, patch)
	}

	if m.canvases == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.syncTimeout)
	defer cancel()
	if err := m.canvases.UpdateCanvasNodeData(ctx, info.CanvasID, info.NodeID, patch); err != nil {
		m.logger.Error("failed to update canvas node",
			zap.String("canvasId", info.CanvasID),
			zap.String("nodeId", info.NodeID),
			zap.Error(err))
	}
}
