// Package taskmanager keeps long running video tasks attached to the canvas
// node that started them, independent of which canvas is currently open.
package taskmanager

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/workspace"
)

// DefaultCleanupSpec runs CleanupCompletedTasks every ten minutes
const DefaultCleanupSpec = "@every 10m"

const defaultSyncTimeout = 10 * time.Second

// keyLockStripes is the number of mutexes serializing node writes
const keyLockStripes = 64

// TaskType selects the polling driver
type TaskType string

const (
	TaskVideo TaskType = "video"
	TaskVeo   TaskType = "veo"
)

// TaskStatus is the manager level lifecycle of a task
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transition can happen
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskInfo is a snapshot of one registered task
type TaskInfo struct {
	RunID     string              `json:"runId"`
	TaskID    string              `json:"taskId"`
	NodeID    string              `json:"nodeId"`
	CanvasID  string              `json:"canvasId"`
	Type      TaskType            `json:"type"`
	Status    TaskStatus          `json:"status"`
	Progress  int                 `json:"progress"`
	Stage     mediaflow.TaskStage `json:"stage,omitempty"`
	Error     string              `json:"error,omitempty"`
	StartTime time.Time           `json:"startTime"`
}

type entry struct {
	info   TaskInfo
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns registered tasks and their polling drivers
type Manager struct {
	client   *mediaflow.Client
	canvases workspace.CanvasStore
	live     workspace.LiveState

	logger      *zap.Logger
	cleanupSpec string
	syncTimeout time.Duration

	mu    sync.Mutex
	tasks map[string]*entry

	// keyLocks serialize the store writes of a node. They are taken before mu.
	keyLocks [keyLockStripes]sync.Mutex

	wg     sync.WaitGroup
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCleanupSpec sets the cron spec of the periodic cleanup. An empty spec disables it.
func WithCleanupSpec(spec string) Option {
	return func(m *Manager) {
		m.cleanupSpec = spec
	}
}

// WithSyncTimeout bounds each backing store write
func WithSyncTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.syncTimeout = d
		}
	}
}

// New creates a manager. live may be nil when no canvas is displayed in this process.
func New(client *mediaflow.Client, canvases workspace.CanvasStore, live workspace.LiveState, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		client:      client,
		canvases:    canvases,
		live:        live,
		logger:      zap.NewNop(),
		cleanupSpec: DefaultCleanupSpec,
		syncTimeout: defaultSyncTimeout,
		tasks:       make(map[string]*entry),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start schedules the periodic cleanup
func (m *Manager) Start() error {
	if m.cleanupSpec == "" {
		return nil
	}

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.cleanupSpec, func() {
		if n := m.CleanupCompletedTasks(); n > 0 {
			m.logger.Info("cleaned up finished tasks", zap.Int("count", n))
		}
	}); err != nil {
		return errors.Wrapf(err, "invalid cleanup spec %q", m.cleanupSpec)
	}
	m.cron.Start()
	return nil
}

// Shutdown cancels every running task and waits for the drivers to return
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func taskKey(nodeID, canvasID string) string {
	return canvasID + ":" + nodeID
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.keyLocks[h.Sum32()%keyLockStripes]
}

// RegisterTask starts tracking a remote task for a canvas node. A task
// already registered for the same node is cancelled first.
func (m *Manager) RegisterTask(taskType TaskType, taskID, nodeID, canvasID string) (TaskInfo, error) {
	if taskID == "" {
		return TaskInfo{}, &mediaflow.ValidationError{Field: "taskId", Message: "task ID cannot be empty"}
	}
	if nodeID == "" || canvasID == "" {
		return TaskInfo{}, &mediaflow.ValidationError{Message: "node ID and canvas ID are required"}
	}

	var drive driver
	switch taskType {
	case TaskVideo:
		drive = m.driveVideo
	case TaskVeo:
		drive = m.driveVeo
	default:
		return TaskInfo{}, &mediaflow.ValidationError{Field: "type", Message: "unsupported task type: " + string(taskType)}
	}

	key := taskKey(nodeID, canvasID)
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if prev, ok := m.tasks[key]; ok {
		prev.cancel()
		m.logger.Info("replacing task",
			zap.String("canvasId", canvasID),
			zap.String("nodeId", nodeID),
			zap.String("previousTaskId", prev.info.TaskID))
	}

	ctx, cancel := context.WithCancel(m.ctx)
	e := &entry{
		info: TaskInfo{
			RunID:     uuid.NewString(),
			TaskID:    taskID,
			NodeID:    nodeID,
			CanvasID:  canvasID,
			Type:      taskType,
			Status:    StatusRunning,
			Stage:     mediaflow.StageQueued,
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	m.tasks[key] = e
	info := e.info
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("task registered",
		zap.String("type", string(taskType)),
		zap.String("taskId", taskID),
		zap.String("canvasId", canvasID),
		zap.String("nodeId", nodeID),
		zap.String("runId", info.RunID))

	go m.run(ctx, key, info, drive)
	return info, nil
}

// RegisterVideoTask tracks a task created through the video generator node
func (m *Manager) RegisterVideoTask(taskID, nodeID, canvasID string) (TaskInfo, error) {
	return m.RegisterTask(TaskVideo, taskID, nodeID, canvasID)
}

// RegisterVeoTask tracks a task created through the Veo generator node
func (m *Manager) RegisterVeoTask(taskID, nodeID, canvasID string) (TaskInfo, error) {
	return m.RegisterTask(TaskVeo, taskID, nodeID, canvasID)
}

// CancelTask stops the task of a node and forgets it. The returned info
// carries the cancelled status; ok is false when nothing was registered.
func (m *Manager) CancelTask(nodeID, canvasID string) (TaskInfo, bool) {
	key := taskKey(nodeID, canvasID)
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[key]
	if !ok {
		return TaskInfo{}, false
	}
	e.cancel()
	delete(m.tasks, key)

	info := e.info
	if !info.Status.Terminal() {
		info.Status = StatusCancelled
	}
	m.logger.Info("task cancelled",
		zap.String("taskId", info.TaskID),
		zap.String("canvasId", canvasID),
		zap.String("nodeId", nodeID))
	return info, true
}

// GetTask returns the task registered for a node
func (m *Manager) GetTask(nodeID, canvasID string) (TaskInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[taskKey(nodeID, canvasID)]
	if !ok {
		return TaskInfo{}, false
	}
	return e.info, true
}

// IsTaskRunning reports whether the node has a task still running
func (m *Manager) IsTaskRunning(nodeID, canvasID string) bool {
	info, ok := m.GetTask(nodeID, canvasID)
	return ok && info.Status == StatusRunning
}

// GetAllTasks returns every tracked task, oldest first
func (m *Manager) GetAllTasks() []TaskInfo {
	return m.filter(func(TaskInfo) bool { return true })
}

// GetTasksByCanvas returns the tracked tasks of one canvas, oldest first
func (m *Manager) GetTasksByCanvas(canvasID string) []TaskInfo {
	return m.filter(func(info TaskInfo) bool { return info.CanvasID == canvasID })
}

func (m *Manager) filter(keep func(TaskInfo) bool) []TaskInfo {
	m.mu.Lock()
	out := make([]TaskInfo, 0, len(m.tasks))
	for _, e := range m.tasks {
		if keep(e.info) {
			out = append(out, e.info)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// CleanupCompletedTasks forgets every task in a terminal status and returns how many were removed
func (m *Manager) CleanupCompletedTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, e := range m.tasks {
		if e.info.Status.Terminal() {
			e.cancel()
			delete(m.tasks, key)
			n++
		}
	}
	return n
}
