package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/swarmfield/internal/agent"
)

const keyPrefix = "swarmfield:checkpoint:"

// RedisStore persists agent checkpoints as JSON blobs in Redis, one key
// per thread id.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, logger: logger}, nil
}

// Save writes the checkpoint blob for its thread id.
func (s *RedisStore) Save(ctx context.Context, cp *agent.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+cp.ThreadID, data, 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	return nil
}

// Load reads a thread's checkpoint; (nil, nil) when none exists.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*agent.Checkpoint, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+threadID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	var cp agent.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &cp, nil
}

// Delete removes a thread's checkpoint.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+threadID).Err(); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", threadID, err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
