package swarm

import "time"

// Concept is a pheromone-weighted signal in the shared environment.
// Concepts carry no agent ownership; every agent reinforces the same row.
type Concept struct {
	Name           string    `json:"name"`
	Pheromone      float64   `json:"pheromone"`
	LastReinforced time.Time `json:"last_reinforced"`
}

// Fact is an append-only discovery recorded by an agent.
type Fact struct {
	ID            int64     `json:"id"`
	Content       string    `json:"content"`
	SourceAgentID string    `json:"source_agent_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is a claimable unit of work in the shared environment.
type Task struct {
	ID              int64      `json:"id"`
	Description     string     `json:"description"`
	Status          TaskStatus `json:"status"`
	SourceAgentID   string     `json:"source_agent_id"`
	AssignedAgentID string     `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
