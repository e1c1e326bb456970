package swarm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// AddTask enqueues a pending task. Any producer may add tasks, including
// the system initializer at swarm start.
func (e *Environment) AddTask(ctx context.Context, description, sourceAgentID string) (int64, error) {
	if description == "" {
		return 0, fmt.Errorf("add task: empty description")
	}

	var id int64
	err := e.db.QueryRow(ctx, `
		INSERT INTO tasks (description, status, source_agent_id)
		VALUES ($1, 'pending', $2)
		RETURNING id`,
		description, sourceAgentID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add task: %w", err)
	}
	e.logger.Debug("task added",
		zap.Int64("task", id),
		zap.String("source", sourceAgentID))
	return id, nil
}

// AvailableTasks returns pending tasks, oldest first.
func (e *Environment) AvailableTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := e.db.Query(ctx, `
		SELECT id, description, status, source_agent_id,
		       COALESCE(assigned_agent_id, ''), created_at, completed_at
		FROM tasks
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("available tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Description, &t.Status, &t.SourceAgentID,
			&t.AssignedAgentID, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ClaimTask transitions a pending task to in_progress and records the
// claiming agent. The compare-and-set on status guarantees exactly one
// winner when two agents observe the same pending task.
func (e *Environment) ClaimTask(ctx context.Context, taskID int64, agentID string) error {
	tag, err := e.db.Exec(ctx, `
		UPDATE tasks
		SET status = 'in_progress', assigned_agent_id = $2
		WHERE id = $1 AND status = 'pending'`,
		taskID, agentID,
	)
	if err != nil {
		return fmt.Errorf("claim task %d: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim task %d by %s: %w", taskID, agentID, ErrTaskUnavailable)
	}
	e.logger.Debug("task claimed",
		zap.Int64("task", taskID),
		zap.String("agent", agentID))
	return nil
}

// CompleteTask marks an in_progress task completed, but only for the
// agent recorded in its claim. A mismatched agent gets ErrTaskNotOwned
// and the row is untouched.
func (e *Environment) CompleteTask(ctx context.Context, taskID int64, agentID string) error {
	tag, err := e.db.Exec(ctx, `
		UPDATE tasks
		SET status = 'completed', completed_at = now()
		WHERE id = $1 AND assigned_agent_id = $2 AND status = 'in_progress'`,
		taskID, agentID,
	)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete task %d by %s: %w", taskID, agentID, ErrTaskNotOwned)
	}
	e.logger.Debug("task completed",
		zap.Int64("task", taskID),
		zap.String("agent", agentID))
	return nil
}
