package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/nidhogg/swarmfield/internal/provider"
	"go.uber.org/zap"
)

// Loop drives one agent thread through the Reason -> Act -> Reflect
// state machine. All mutable run state lives in the checkpoint, which is
// persisted after every completed transition; a crash mid-cycle resumes
// from the last committed node.
//
// Transitions:
//
//	Reasoning     -> ToolExecuting  when the decision carries invocations
//	Reasoning     -> Reflecting     on a final answer
//	ToolExecuting -> Reasoning      always
//	Reflecting    -> Done           always
type Loop struct {
	threadID    string
	oracle      Oracle
	tools       *ToolRegistry
	env         Environment
	memories    Memories
	checkpoints CheckpointStore
	logger      *zap.Logger

	cp *Checkpoint
}

// NewLoop creates a control loop for one agent thread.
func NewLoop(threadID string, oracle Oracle, tools *ToolRegistry, env Environment, mem Memories, checkpoints CheckpointStore, logger *zap.Logger) *Loop {
	return &Loop{
		threadID:    threadID,
		oracle:      oracle,
		tools:       tools,
		env:         env,
		memories:    mem,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Begin loads the thread's checkpoint (or starts a fresh one), appends
// the goal as a user message, and enters the Reasoning state.
func (l *Loop) Begin(ctx context.Context, goal string) error {
	cp, err := l.checkpoints.Load(ctx, l.threadID)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{ThreadID: l.threadID}
	}

	cp.Goal = goal
	cp.Plan = ""
	cp.State = StateReasoning
	cp.Messages = append(cp.Messages, provider.Message{Role: "user", Content: goal})
	l.cp = cp
	return l.save(ctx)
}

// Resume loads the thread's checkpoint and continues from its persisted
// state. Returns false when no checkpoint exists.
func (l *Loop) Resume(ctx context.Context) (bool, error) {
	cp, err := l.checkpoints.Load(ctx, l.threadID)
	if err != nil {
		return false, err
	}
	if cp == nil {
		return false, nil
	}
	l.cp = cp
	return true, nil
}

// State returns the current state, or Done before Begin/Resume.
func (l *Loop) State() State {
	if l.cp == nil {
		return StateDone
	}
	return l.cp.State
}

// Checkpoint returns the in-memory checkpoint for inspection.
func (l *Loop) Checkpoint() *Checkpoint {
	return l.cp
}

// Step executes the current state's node and advances at most one
// transition. Recoverable failures (oracle or store outage during
// Reasoning) leave the state and checkpoint untouched so the same node
// retries on the next tick.
func (l *Loop) Step(ctx context.Context) error {
	if l.cp == nil {
		return errors.New("loop not started")
	}

	switch l.cp.State {
	case StateReasoning:
		return l.stepReason(ctx)
	case StateToolExecuting:
		return l.stepTools(ctx)
	case StateReflecting:
		return l.stepReflect(ctx)
	case StateDone:
		return nil
	default:
		return errors.New("unknown state: " + string(l.cp.State))
	}
}

// Run steps the machine until Done or until maxCycles reasoning cycles
// have been spent. The budget belongs to the caller; when it runs out
// the checkpoint stays where it is, resumable later.
func (l *Loop) Run(ctx context.Context, maxCycles int) error {
	start := l.cp.Iterations
	for l.cp.State != StateDone {
		if l.cp.State == StateReasoning && maxCycles > 0 && l.cp.Iterations-start >= maxCycles {
			l.logger.Warn("iteration budget exhausted",
				zap.String("thread", l.threadID),
				zap.Int("cycles", maxCycles))
			return nil
		}
		before := l.cp.State
		if err := l.Step(ctx); err != nil {
			return err
		}
		// A recoverable failure leaves the state unchanged; bail out of
		// this run and let the scheduler retry on its next tick.
		if l.cp.State == before && before == StateReasoning {
			return nil
		}
	}
	return nil
}

func (l *Loop) stepReason(ctx context.Context) error {
	retrieved, err := l.memories.Search(ctx, l.cp.Goal, 5)
	if err != nil {
		l.logger.Warn("memory retrieval failed, will retry",
			zap.String("thread", l.threadID), zap.Error(err))
		return nil
	}
	l.cp.RetrievedMemories = strings.Join(retrieved, "\n")

	decision, err := l.oracle.Decide(ctx, &DecideContext{
		Goal:              l.cp.Goal,
		Messages:          l.cp.Messages,
		RetrievedMemories: l.cp.RetrievedMemories,
	})
	if err != nil {
		l.logger.Warn("oracle unavailable, will retry",
			zap.String("thread", l.threadID), zap.Error(err))
		return nil
	}

	msg := provider.Message{Role: "assistant", Content: decision.Content}
	for _, inv := range decision.Invocations {
		msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall{
			ID:   inv.ID,
			Type: "function",
			Function: provider.ToolCallFunction{
				Name:      inv.Name,
				Arguments: inv.Arguments,
			},
		})
	}
	l.cp.Messages = append(l.cp.Messages, msg)
	l.cp.Plan = decision.Content
	l.cp.Iterations++

	if len(decision.Invocations) > 0 {
		l.cp.State = StateToolExecuting
	} else {
		l.cp.State = StateReflecting
	}
	return l.save(ctx)
}

func (l *Loop) stepTools(ctx context.Context) error {
	calls := l.lastToolCalls()
	for _, tc := range calls {
		content, err := l.tools.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			// Tool failures are data for the oracle, never fatal. The
			// error text itself becomes the result content.
			content = err.Error()
			l.logger.Debug("tool returned error",
				zap.String("thread", l.threadID),
				zap.String("tool", tc.Function.Name),
				zap.Error(err))
		}
		result := ToolResult{
			InvocationID: tc.ID,
			Name:         tc.Function.Name,
			Content:      content,
		}
		l.cp.ToolOutputs = append(l.cp.ToolOutputs, result)
		l.cp.Messages = append(l.cp.Messages, provider.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: tc.ID,
		})
	}

	l.cp.State = StateReasoning
	return l.save(ctx)
}

func (l *Loop) stepReflect(ctx context.Context) error {
	// Reflection is best-effort; nothing here may fail the run.
	summary, err := l.oracle.Reflect(ctx, l.cp.Messages)
	if err != nil {
		l.logger.Warn("reflection failed, skipping consolidation",
			zap.String("thread", l.threadID), zap.Error(err))
	} else if summary != "" {
		if err := l.memories.Append(ctx, summary); err != nil {
			l.logger.Warn("storing reflection failed",
				zap.String("thread", l.threadID), zap.Error(err))
		}
	}

	if err := l.env.ReinforceConcept(ctx, l.cp.Goal, 1.0); err != nil {
		l.logger.Warn("goal reinforcement failed",
			zap.String("thread", l.threadID), zap.Error(err))
	}

	l.cp.State = StateDone
	return l.save(ctx)
}

// lastToolCalls returns the invocation list of the most recent assistant
// message.
func (l *Loop) lastToolCalls() []provider.ToolCall {
	for i := len(l.cp.Messages) - 1; i >= 0; i-- {
		if l.cp.Messages[i].Role == "assistant" {
			return l.cp.Messages[i].ToolCalls
		}
	}
	return nil
}

func (l *Loop) save(ctx context.Context) error {
	if err := l.checkpoints.Save(ctx, l.cp); err != nil {
		// The in-memory transition already happened; losing one snapshot
		// only costs resumption granularity, not correctness.
		l.logger.Warn("checkpoint save failed",
			zap.String("thread", l.threadID), zap.Error(err))
	}
	return nil
}
