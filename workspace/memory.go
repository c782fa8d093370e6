package workspace

import (
	"context"
	"sync"
)

// Memory is an in-process LiveState and CanvasStore.
// Switching the active canvas saves the live nodes into the store and loads
// the nodes of the new canvas. With a backing store set, both the save and
// the load go through it.
type Memory struct {
	switchMu sync.Mutex
	mu       sync.RWMutex
	active   string
	live     map[string]NodeState
	canvases map[string]map[string]NodeState
	backing  CanvasStore
}

// MemoryOption configures a Memory
type MemoryOption func(*Memory)

// WithBackingStore saves and loads canvases through store when the active canvas changes
func WithBackingStore(store CanvasStore) MemoryOption {
	return func(m *Memory) {
		m.backing = store
	}
}

// NewMemory creates an empty workspace with no active canvas
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		live:     make(map[string]NodeState),
		canvases: make(map[string]map[string]NodeState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ActiveCanvasID returns the canvas currently open
func (m *Memory) ActiveCanvasID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// SetActiveCanvas switches the open canvas
func (m *Memory) SetActiveCanvas(canvasID string) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	var loaded map[string]NodeState
	if m.backing != nil {
		ctx := context.Background()
		if err := m.saveLive(ctx); err != nil {
			return err
		}
		nodes, err := m.backing.Nodes(ctx, canvasID)
		if err != nil {
			return err
		}
		loaded = nodes
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		m.canvases[m.active] = copyNodes(m.live)
	}
	m.active = canvasID
	if loaded == nil {
		loaded = m.canvases[canvasID]
	}
	m.live = copyNodes(loaded)
	return nil
}

// saveLive writes the live nodes of the active canvas to the backing store
func (m *Memory) saveLive(ctx context.Context) error {
	m.mu.RLock()
	canvasID, nodes := m.active, copyNodes(m.live)
	m.mu.RUnlock()

	if canvasID == "" {
		return nil
	}
	for nodeID, s := range nodes {
		if err := m.backing.UpdateCanvasNodeData(ctx, canvasID, nodeID, s.Patch()); err != nil {
			return err
		}
	}
	return nil
}

// UpdateNodeData patches a node of the active canvas
func (m *Memory) UpdateNodeData(nodeID string, patch NodePatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[nodeID] = patch.Apply(m.live[nodeID])
}

// LiveNode returns a node of the active canvas
func (m *Memory) LiveNode(nodeID string) (NodeState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.live[nodeID]
	return s, ok
}

// UpdateCanvasNodeData patches a node in the backing store
func (m *Memory) UpdateCanvasNodeData(_ context.Context, canvasID, nodeID string, patch NodePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes, ok := m.canvases[canvasID]
	if !ok {
		nodes = make(map[string]NodeState)
		m.canvases[canvasID] = nodes
	}
	nodes[nodeID] = patch.Apply(nodes[nodeID])
	return nil
}

// Node returns a node from the backing store
func (m *Memory) Node(_ context.Context, canvasID, nodeID string) (NodeState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.canvases[canvasID][nodeID]
	return s, ok, nil
}

// Nodes returns every node of a canvas from the backing store
func (m *Memory) Nodes(_ context.Context, canvasID string) (map[string]NodeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyNodes(m.canvases[canvasID]), nil
}

func copyNodes(src map[string]NodeState) map[string]NodeState {
	dst := make(map[string]NodeState, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
