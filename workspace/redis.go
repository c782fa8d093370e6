package workspace

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "mediaflow:canvas:"
	maxTxRetries     = 5
)

// RedisStore is a CanvasStore keeping one hash per canvas (field = node id,
// value = JSON NodeState). Every update is also published on the canvas
// channel so other editor processes can refresh their live view.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Connect creates a Redis client from a URL and verifies connectivity.
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return rdb, nil
}

// NewRedisStore creates a store. ttl of 0 keeps canvases forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: defaultKeyPrefix, ttl: ttl}
}

func (s *RedisStore) key(canvasID string) string {
	return s.prefix + canvasID
}

// Channel returns the pub/sub channel carrying updates of a canvas
func (s *RedisStore) Channel(canvasID string) string {
	return s.prefix + canvasID + ":events"
}

// NodeEvent is published after every update
type NodeEvent struct {
	CanvasID string    `json:"canvasId"`
	NodeID   string    `json:"nodeId"`
	State    NodeState `json:"state"`
}

// UpdateCanvasNodeData merges patch into the stored node inside a WATCH transaction
func (s *RedisStore) UpdateCanvasNodeData(ctx context.Context, canvasID, nodeID string, patch NodePatch) error {
	key := s.key(canvasID)
	var updated NodeState

	txf := func(tx *redis.Tx) error {
		current, _, err := readNode(ctx, tx, key, nodeID)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)

		data, err := json.Marshal(updated)
		if err != nil {
			return errors.Wrap(err, "marshal node state")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, nodeID, data)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return errors.Wrapf(err, "update node %s of canvas %s", nodeID, canvasID)
	}

	event, err := json.Marshal(NodeEvent{CanvasID: canvasID, NodeID: nodeID, State: updated})
	if err != nil {
		return errors.Wrap(err, "marshal node event")
	}
	return s.rdb.Publish(ctx, s.Channel(canvasID), event).Err()
}

// Node returns the stored state of a node
func (s *RedisStore) Node(ctx context.Context, canvasID, nodeID string) (NodeState, bool, error) {
	return readNode(ctx, s.rdb, s.key(canvasID), nodeID)
}

// Nodes returns every stored node of a canvas
func (s *RedisStore) Nodes(ctx context.Context, canvasID string) (map[string]NodeState, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key(canvasID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "read canvas %s", canvasID)
	}
	out := make(map[string]NodeState, len(raw))
	for id, data := range raw {
		var st NodeState
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, errors.Wrapf(err, "decode node %s", id)
		}
		out[id] = st
	}
	return out, nil
}

// DeleteCanvas removes all stored nodes of a canvas
func (s *RedisStore) DeleteCanvas(ctx context.Context, canvasID string) error {
	return s.rdb.Del(ctx, s.key(canvasID)).Err()
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readNode(ctx context.Context, c hashGetter, key, nodeID string) (NodeState, bool, error) {
	var st NodeState
	data, err := c.HGet(ctx, key, nodeID).Result()
	if err == redis.Nil {
		return st, false, nil
	}
	if err != nil {
		return st, false, errors.Wrapf(err, "read node %s", nodeID)
	}
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return st, false, errors.Wrapf(err, "decode node %s", nodeID)
	}
	return st, true, nil
}
