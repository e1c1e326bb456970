package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nidhogg/swarmfield/internal/provider"
	"go.uber.org/zap"
)

// DecideContext is everything the reasoning oracle sees for one decision.
type DecideContext struct {
	Goal              string
	Messages          []provider.Message
	RetrievedMemories string
}

// ToolInvocation is the oracle's request to run a named capability.
type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Decision is the oracle's output: free-text reasoning plus zero or more
// tool invocations. No invocations means the decision is a final answer.
type Decision struct {
	Content     string
	Invocations []ToolInvocation
}

// Oracle is the external reasoning capability. Decide may fail with a
// timeout or availability error; callers treat that as recoverable.
// Reflect consolidates a finished conversation into a summary.
type Oracle interface {
	Decide(ctx context.Context, dc *DecideContext) (*Decision, error)
	Reflect(ctx context.Context, messages []provider.Message) (string, error)
}

const reasonPrompt = `You are an autonomous agent in a cooperating swarm. You share no direct channel with the other agents; you coordinate through the environment instead. Reinforced concepts show what the swarm currently cares about, facts record what has been discovered, and the task queue holds work anyone can pick up.

Work in a Reason-Act loop: think about the goal, then either call tools to gather information or act, or give your final answer. Store significant learnings with add_memory and recall past ones with search_memory. Record discoveries as facts and reinforce the concepts they relate to so the rest of the swarm can follow your trail.`

const reflectPrompt = `The run has concluded. Review the conversation below and write a concise summary to keep in long-term memory: what was the goal, what was achieved or answered, and which lessons or generalizable facts are worth remembering. Reply with the summary text only.`

// RouterOracle implements Oracle on top of the provider router.
type RouterOracle struct {
	router  *provider.Router
	agentID string
	model   string
	tools   []provider.Tool
	logger  *zap.Logger
}

// NewRouterOracle creates an oracle bound to one agent thread. The tool
// definitions are advertised on every Decide call.
func NewRouterOracle(router *provider.Router, agentID, model string, tools []provider.Tool, logger *zap.Logger) *RouterOracle {
	return &RouterOracle{
		router:  router,
		agentID: agentID,
		model:   model,
		tools:   tools,
		logger:  logger,
	}
}

// Decide sends the goal, retrieved memories, and conversation to the
// model and converts its reply into a Decision.
func (o *RouterOracle) Decide(ctx context.Context, dc *DecideContext) (*Decision, error) {
	system := reasonPrompt + "\n\nCurrent goal: " + dc.Goal
	if dc.RetrievedMemories != "" {
		system += "\n\nRetrieved memories:\n" + dc.RetrievedMemories
	}

	req := &provider.ChatRequest{
		Model:     o.model,
		Messages:  append([]provider.Message{{Role: "system", Content: system}}, dc.Messages...),
		MaxTokens: 4096,
	}
	if len(o.tools) > 0 {
		req.Tools = o.tools
		req.ToolChoice = "auto"
	}

	resp, err := o.router.Route(ctx, o.agentID, req)
	if err != nil {
		return nil, fmt.Errorf("oracle decide: %w", err)
	}

	d := &Decision{Content: resp.Content}
	for _, tc := range resp.ToolCalls {
		id := tc.ID
		if id == "" {
			id = uuid.New().String()
		}
		d.Invocations = append(d.Invocations, ToolInvocation{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return d, nil
}

// Reflect asks the model for a consolidated summary of the conversation.
func (o *RouterOracle) Reflect(ctx context.Context, messages []provider.Message) (string, error) {
	var history strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&history, "[%s] %s\n", m.Role, m.Content)
	}

	req := &provider.ChatRequest{
		Model: o.model,
		Messages: []provider.Message{
			{Role: "system", Content: reflectPrompt},
			{Role: "user", Content: history.String()},
		},
		MaxTokens: 1024,
	}
	resp, err := o.router.Route(ctx, o.agentID, req)
	if err != nil {
		return "", fmt.Errorf("oracle reflect: %w", err)
	}
	return resp.Content, nil
}
