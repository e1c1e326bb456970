package checkpoint

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nidhogg/swarmfield/internal/agent"
)

// MemoryStore keeps checkpoints in process memory. Used when Redis is
// not configured, and by tests. Checkpoints are stored as serialized
// blobs so Load always returns an independent copy.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, cp *agent.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[cp.ThreadID] = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (*agent.Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.blobs[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var cp agent.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, threadID)
	return nil
}
