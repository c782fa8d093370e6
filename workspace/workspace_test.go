package workspace

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNodePatchApply(t *testing.T) {
	base := NodeState{Status: NodeLoading, Progress: 10, TaskID: "t1"}

	got := ProgressPatch(NodeLoading, 50, "in_progress", "t1").Apply(base)
	if got.Progress != 50 || got.TaskStage != "in_progress" || got.Status != NodeLoading {
		t.Errorf("Unexpected state %+v", got)
	}

	failed := ErrorPatch("boom").Apply(got)
	if failed.Status != NodeError || failed.Error != "boom" || failed.TaskStage != "failed" {
		t.Errorf("Unexpected state %+v", failed)
	}
	if failed.Progress != 50 || failed.TaskID != "t1" {
		t.Errorf("Error patch should keep untouched fields, got %+v", failed)
	}
}

func TestMemoryLiveAndBacking(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetActiveCanvas("c1")

	m.UpdateNodeData("n1", ProgressPatch(NodeLoading, 20, "queued", "t1"))
	if err := m.UpdateCanvasNodeData(ctx, "c2", "n9", ProgressPatch(NodeSuccess, 100, "completed", "t9")); err != nil {
		t.Fatalf("UpdateCanvasNodeData failed: %v", err)
	}

	if _, ok := m.LiveNode("n9"); ok {
		t.Error("Backing store writes must not leak into the live canvas")
	}

	m.SetActiveCanvas("c2")
	if st, ok := m.LiveNode("n9"); !ok || st.Status != NodeSuccess {
		t.Errorf("Expected c2 nodes loaded on switch, got %+v", st)
	}

	st, ok, err := m.Node(ctx, "c1", "n1")
	if err != nil || !ok {
		t.Fatalf("Expected c1 live nodes saved on switch, ok=%v err=%v", ok, err)
	}
	if st.Progress != 20 {
		t.Errorf("Unexpected saved state %+v", st)
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("MEDIAFLOW_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MEDIAFLOW_TEST_REDIS_URL not set")
	}

	rdb, err := Connect(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	store := NewRedisStore(rdb, time.Minute)
	canvasID := "test-" + uuid.NewString()
	defer store.DeleteCanvas(ctx, canvasID)

	sub := rdb.Subscribe(ctx, store.Channel(canvasID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := store.UpdateCanvasNodeData(ctx, canvasID, "n1", ProgressPatch(NodeLoading, 30, "in_progress", "t1")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.UpdateCanvasNodeData(ctx, canvasID, "n1", ErrorPatch("boom")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	st, ok, err := store.Node(ctx, canvasID, "n1")
	if err != nil || !ok {
		t.Fatalf("Node lookup failed: ok=%v err=%v", ok, err)
	}
	if st.Status != NodeError || st.Progress != 30 || st.TaskID != "t1" {
		t.Errorf("Unexpected merged state %+v", st)
	}

	nodes, err := store.Nodes(ctx, canvasID)
	if err != nil || len(nodes) != 1 {
		t.Errorf("Expected one node, got %d (err=%v)", len(nodes), err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != store.Channel(canvasID) {
			t.Errorf("Unexpected channel %s", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Error("Expected a node event")
	}
}

func TestMemorySavesLiveNodesToBackingStore(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	live := NewMemory(WithBackingStore(backing))

	if err := live.SetActiveCanvas("c1"); err != nil {
		t.Fatalf("SetActiveCanvas failed: %v", err)
	}
	live.UpdateNodeData("n1", ProgressPatch(NodeLoading, 30, "in_progress", "t1"))
	live.UpdateNodeData("n2", ErrorPatch("quota exceeded"))

	if err := live.SetActiveCanvas("c2"); err != nil {
		t.Fatalf("SetActiveCanvas failed: %v", err)
	}

	st, ok, err := backing.Node(ctx, "c1", "n1")
	if err != nil || !ok {
		t.Fatalf("Expected c1 live nodes in the backing store, ok=%v err=%v", ok, err)
	}
	if st.Progress != 30 || st.TaskStage != "in_progress" || st.TaskID != "t1" {
		t.Errorf("Unexpected saved state %+v", st)
	}
	if st, _, _ := backing.Node(ctx, "c1", "n2"); st.Status != NodeError || st.Error != "quota exceeded" {
		t.Errorf("Unexpected saved error state %+v", st)
	}

	if err := live.SetActiveCanvas("c1"); err != nil {
		t.Fatalf("SetActiveCanvas failed: %v", err)
	}
	if st, ok := live.LiveNode("n1"); !ok || st.Progress != 30 {
		t.Errorf("Expected c1 restored from the backing store, got %+v", st)
	}
}

func TestMemoryLoadsFromBackingStore(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	if err := backing.UpdateCanvasNodeData(ctx, "c1", "n1", ProgressPatch(NodeSuccess, 100, "completed", "t1")); err != nil {
		t.Fatalf("UpdateCanvasNodeData failed: %v", err)
	}

	live := NewMemory(WithBackingStore(backing))
	if err := live.SetActiveCanvas("c1"); err != nil {
		t.Fatalf("SetActiveCanvas failed: %v", err)
	}
	st, ok := live.LiveNode("n1")
	if !ok || st.Status != NodeSuccess || st.TaskID != "t1" {
		t.Errorf("Expected node loaded from backing store, got %+v", st)
	}
}
