package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/swarmfield/internal/provider"
	"github.com/nidhogg/swarmfield/internal/swarm"
)

// Environment is the slice of the swarm environment the agent acts on.
// *swarm.Environment satisfies it; tests use in-memory fakes.
type Environment interface {
	ReinforceConcept(ctx context.Context, name string, weight float64) error
	StrongestConcepts(ctx context.Context, limit int) ([]swarm.Concept, error)
	AddFact(ctx context.Context, content, sourceAgentID string) (int64, error)
	Facts(ctx context.Context, query string, limit int) ([]swarm.Fact, error)
	AddTask(ctx context.Context, description, sourceAgentID string) (int64, error)
	AvailableTasks(ctx context.Context, limit int) ([]swarm.Task, error)
	CompleteTask(ctx context.Context, taskID int64, agentID string) error
}

// Memories is the long-term memory surface the agent reads and writes.
// *memory.Index satisfies it.
type Memories interface {
	Append(ctx context.Context, content string) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Searcher performs an external web lookup.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]string {
	return map[string]string{"type": "string", "description": desc}
}

func numberProp(desc string) map[string]string {
	return map[string]string{"type": "number", "description": desc}
}

// RegisterSwarmTools adds the default capability set for one agent:
// web search, long-term memory, concept pheromones, the fact ledger,
// and the task queue. The agent id is stamped on facts and tasks.
func RegisterSwarmTools(reg *ToolRegistry, agentID string, env Environment, mem Memories, searcher Searcher) {
	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "web_search",
			Description: "Search the web for current information about a query",
			Parameters: objectSchema(map[string]interface{}{
				"query": stringProp("The search query"),
			}, "query"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		return searcher.Search(ctx, p.Query, 5)
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "add_memory",
			Description: "Store important information in long-term memory",
			Parameters: objectSchema(map[string]interface{}{
				"content": stringProp("The information to remember"),
			}, "content"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		if err := mem.Append(ctx, p.Content); err != nil {
			return "", err
		}
		return "Stored in long-term memory.", nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "search_memory",
			Description: "Search long-term memory for relevant past learnings",
			Parameters: objectSchema(map[string]interface{}{
				"query": stringProp("Keywords to search for"),
			}, "query"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		memories, err := mem.Search(ctx, p.Query, 5)
		if err != nil {
			return "", err
		}
		if len(memories) == 0 {
			return fmt.Sprintf("No memories found for %q.", p.Query), nil
		}
		return strings.Join(memories, "\n"), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "reinforce_concept",
			Description: "Strengthen a concept's pheromone in the shared swarm environment",
			Parameters: objectSchema(map[string]interface{}{
				"concept": stringProp("The concept to reinforce"),
				"weight":  numberProp("Reinforcement weight, default 1.0"),
			}, "concept"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Concept string  `json:"concept"`
			Weight  float64 `json:"weight"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		if p.Weight == 0 {
			p.Weight = 1.0
		}
		if err := env.ReinforceConcept(ctx, p.Concept, p.Weight); err != nil {
			return "", err
		}
		return fmt.Sprintf("Concept %q reinforced.", p.Concept), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "strongest_concepts",
			Description: "List the concepts with the highest pheromone levels in the swarm",
			Parameters: objectSchema(map[string]interface{}{
				"limit": numberProp("Maximum concepts to return, default 5"),
			}),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Limit int `json:"limit"`
		}
		if args != "" {
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
		}
		concepts, err := env.StrongestConcepts(ctx, p.Limit)
		if err != nil {
			return "", err
		}
		if len(concepts) == 0 {
			return "No concepts in the shared environment yet.", nil
		}
		parts := make([]string, len(concepts))
		for i, c := range concepts {
			parts[i] = fmt.Sprintf("%s (strength %.2f)", c.Name, c.Pheromone)
		}
		return "Strongest concepts: " + strings.Join(parts, ", "), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "add_fact",
			Description: "Record a discovered fact in the shared ledger for other agents",
			Parameters: objectSchema(map[string]interface{}{
				"content": stringProp("The fact to record"),
			}, "content"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		id, err := env.AddFact(ctx, p.Content, agentID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Fact %d recorded.", id), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "query_facts",
			Description: "Look up facts other agents have recorded, newest first",
			Parameters: objectSchema(map[string]interface{}{
				"query": stringProp("Substring filter, empty for most recent"),
				"limit": numberProp("Maximum facts to return, default 5"),
			}),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if args != "" {
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
		}
		facts, err := env.Facts(ctx, p.Query, p.Limit)
		if err != nil {
			return "", err
		}
		if len(facts) == 0 {
			return "No matching facts.", nil
		}
		parts := make([]string, len(facts))
		for i, f := range facts {
			parts[i] = fmt.Sprintf("%s (from %s)", f.Content, f.SourceAgentID)
		}
		return strings.Join(parts, "\n"), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "add_task",
			Description: "Add a task to the shared queue for any agent to pick up",
			Parameters: objectSchema(map[string]interface{}{
				"description": stringProp("What needs to be done"),
			}, "description"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		id, err := env.AddTask(ctx, p.Description, agentID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Task %d queued.", id), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "list_tasks",
			Description: "List pending tasks in the shared queue, oldest first",
			Parameters: objectSchema(map[string]interface{}{
				"limit": numberProp("Maximum tasks to return, default 5"),
			}),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Limit int `json:"limit"`
		}
		if args != "" {
			if err := json.Unmarshal([]byte(args), &p); err != nil {
				return "", fmt.Errorf("parse args: %w", err)
			}
		}
		tasks, err := env.AvailableTasks(ctx, p.Limit)
		if err != nil {
			return "", err
		}
		if len(tasks) == 0 {
			return "No pending tasks.", nil
		}
		parts := make([]string, len(tasks))
		for i, t := range tasks {
			parts[i] = fmt.Sprintf("Task %d: %s (from %s)", t.ID, t.Description, t.SourceAgentID)
		}
		return strings.Join(parts, "\n"), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "complete_task",
			Description: "Mark a task you hold as completed",
			Parameters: objectSchema(map[string]interface{}{
				"task_id": numberProp("The id of the task to complete"),
			}, "task_id"),
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			TaskID int64 `json:"task_id"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		if err := env.CompleteTask(ctx, p.TaskID, agentID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task %d completed.", p.TaskID), nil
	})
}
