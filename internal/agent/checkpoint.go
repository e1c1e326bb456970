package agent

import (
	"context"

	"github.com/nidhogg/swarmfield/internal/provider"
)

// State names a node in the control-loop state machine.
type State string

const (
	StateReasoning     State = "reasoning"
	StateToolExecuting State = "tool_executing"
	StateReflecting    State = "reflecting"
	StateDone          State = "done"
)

// ToolResult records one executed tool invocation.
type ToolResult struct {
	InvocationID string `json:"invocation_id"`
	Name         string `json:"name"`
	Content      string `json:"content"`
}

// Checkpoint is the durable snapshot of one agent thread. It is written
// at every state-transition boundary and never mid-operation, so a crash
// resumes from the last completed node.
type Checkpoint struct {
	ThreadID          string             `json:"thread_id"`
	State             State              `json:"state"`
	Goal              string             `json:"goal"`
	Plan              string             `json:"plan"`
	RetrievedMemories string             `json:"retrieved_memories"`
	Iterations        int                `json:"iterations"`
	Messages          []provider.Message `json:"messages"`
	ToolOutputs       []ToolResult       `json:"tool_outputs"`
}

// CheckpointStore persists checkpoints keyed by thread id. Load returns
// (nil, nil) when no checkpoint exists for the thread.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}
