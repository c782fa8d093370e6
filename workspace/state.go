// Package workspace holds node level state of editor canvases: the live
// view of the active canvas and a backing store covering every canvas.
package workspace

import (
	"context"
	"time"
)

// NodeStatus is the display status of a generation node
type NodeStatus string

const (
	NodeLoading NodeStatus = "loading"
	NodeSuccess NodeStatus = "success"
	NodeError   NodeStatus = "error"
)

// NodeState is the generation related data of one node
type NodeState struct {
	Status    NodeStatus `json:"status,omitempty"`
	Progress  int        `json:"progress"`
	TaskStage string     `json:"taskStage,omitempty"`
	TaskID    string     `json:"taskId,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NodePatch is a partial update. Nil fields are left untouched.
type NodePatch struct {
	Status    *NodeStatus `json:"status,omitempty"`
	Progress  *int        `json:"progress,omitempty"`
	TaskStage *string     `json:"taskStage,omitempty"`
	TaskID    *string     `json:"taskId,omitempty"`
	Error     *string     `json:"error,omitempty"`
}

// Apply merges the patch into s
func (p NodePatch) Apply(s NodeState) NodeState {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Progress != nil {
		s.Progress = *p.Progress
	}
	if p.TaskStage != nil {
		s.TaskStage = *p.TaskStage
	}
	if p.TaskID != nil {
		s.TaskID = *p.TaskID
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	s.UpdatedAt = time.Now()
	return s
}

// Patch returns a patch that overwrites every field with the values of s
func (s NodeState) Patch() NodePatch {
	return NodePatch{
		Status:    &s.Status,
		Progress:  &s.Progress,
		TaskStage: &s.TaskStage,
		TaskID:    &s.TaskID,
		Error:     &s.Error,
	}
}

// ProgressPatch reports a running or finished task
func ProgressPatch(status NodeStatus, progress int, stage, taskID string) NodePatch {
	return NodePatch{
		Status:    &status,
		Progress:  &progress,
		TaskStage: &stage,
		TaskID:    &taskID,
	}
}

// ErrorPatch reports a failed task
func ErrorPatch(message string) NodePatch {
	status := NodeError
	stage := "failed"
	return NodePatch{
		Status:    &status,
		Error:     &message,
		TaskStage: &stage,
	}
}

// LiveState is the in-memory state of the canvas currently open in the editor
type LiveState interface {
	ActiveCanvasID() string
	UpdateNodeData(nodeID string, patch NodePatch)
}

// CanvasStore persists node state for every canvas, open or not
type CanvasStore interface {
	UpdateCanvasNodeData(ctx context.Context, canvasID, nodeID string, patch NodePatch) error
	Node(ctx context.Context, canvasID, nodeID string) (NodeState, bool, error)
	Nodes(ctx context.Context, canvasID string) (map[string]NodeState, error)
}
