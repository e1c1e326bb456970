package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nidhogg/swarmfield/internal/swarm"
	"go.uber.org/zap"
)

// DefaultGoal is what an agent works on when the task queue is empty.
const DefaultGoal = "Come up with a new research question related to current global challenges and record it as a task for the swarm."

// Environment is the slice of the swarm environment the scheduler
// drives. *swarm.Environment satisfies it.
type Environment interface {
	Evaporate(ctx context.Context, rate float64) (int, error)
	AvailableTasks(ctx context.Context, limit int) ([]swarm.Task, error)
	ClaimTask(ctx context.Context, taskID int64, agentID string) error
	CompleteTask(ctx context.Context, taskID int64, agentID string) error
	ReinforceConcept(ctx context.Context, name string, weight float64) error
	StrongestConcepts(ctx context.Context, limit int) ([]swarm.Concept, error)
	AddTask(ctx context.Context, description, sourceAgentID string) (int64, error)
}

// Runner is one agent's control loop as the scheduler sees it.
type Runner interface {
	Begin(ctx context.Context, goal string) error
	Run(ctx context.Context, maxCycles int) error
}

// RunnerFactory builds the control loop for an agent thread.
type RunnerFactory func(threadID string) Runner

// SystemAgentID is stamped on tasks seeded by the process rather than
// by an agent.
const SystemAgentID = "system_initializer"

// Config tunes a swarm run.
type Config struct {
	DecayRate float64 // pheromone decay per iteration
	MaxCycles int     // reasoning-cycle budget per agent run
}

// Swarm drives a cohort of agent control loops across iterations:
// decay, task pick, claim, run, complete. Agent failures never stop the
// iteration.
type Swarm struct {
	env      Environment
	factory  RunnerFactory
	agents   []string
	events   *EventLog // may be nil
	cfg      Config
	mu       sync.Mutex
	disabled map[string]bool
	logger   *zap.Logger
}

// NewSwarm creates a scheduler for the given agent thread ids.
func NewSwarm(env Environment, factory RunnerFactory, agents []string, events *EventLog, cfg Config, logger *zap.Logger) *Swarm {
	if cfg.DecayRate <= 0 || cfg.DecayRate >= 1 {
		cfg.DecayRate = 0.1
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = 10
	}
	return &Swarm{
		env:      env,
		factory:  factory,
		agents:   agents,
		events:   events,
		cfg:      cfg,
		disabled: make(map[string]bool),
		logger:   logger,
	}
}

// Disable marks an agent as skipped in subsequent iterations. Models
// partial failure: the rest of the swarm keeps making progress.
func (s *Swarm) Disable(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[agentID] = true
}

// Enable restores a disabled agent.
func (s *Swarm) Enable(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, agentID)
}

func (s *Swarm) isDisabled(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[agentID]
}

// SeedTasks enqueues initial tasks under the system agent id.
func (s *Swarm) SeedTasks(ctx context.Context, descriptions []string) error {
	for _, d := range descriptions {
		if _, err := s.env.AddTask(ctx, d, SystemAgentID); err != nil {
			return fmt.Errorf("seed task: %w", err)
		}
	}
	return nil
}

// Run executes the given number of swarm iterations. Each iteration
// evaporates pheromones once, then gives every enabled agent a turn in
// fixed order.
func (s *Swarm) Run(ctx context.Context, iterations int) error {
	for it := 1; it <= iterations; it++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Info("swarm iteration",
			zap.Int("iteration", it),
			zap.Int("of", iterations))
		s.publish(ctx, Event{Type: EventIteration, Iteration: it})

		if pruned, err := s.env.Evaporate(ctx, s.cfg.DecayRate); err != nil {
			s.logger.Warn("evaporation failed", zap.Error(err))
		} else if pruned > 0 {
			s.logger.Info("pruned faded concepts", zap.Int("count", pruned))
		}

		for _, agentID := range s.agents {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.isDisabled(agentID) {
				s.logger.Info("agent disabled, skipping",
					zap.String("agent", agentID))
				s.publish(ctx, Event{Type: EventAgentSkipped, AgentID: agentID, Iteration: it})
				continue
			}
			s.runAgent(ctx, it, agentID)
		}

		s.logSwarmState(ctx)
	}
	return nil
}

// runAgent gives one agent its turn: pick a task (or synthesize an
// exploratory goal), run the control loop to completion, then close out
// the claim and lay a pheromone trail on the goal.
func (s *Swarm) runAgent(ctx context.Context, iteration int, agentID string) {
	goal := DefaultGoal
	var taskID int64

	tasks, err := s.env.AvailableTasks(ctx, 1)
	if err != nil {
		s.logger.Warn("task lookup failed",
			zap.String("agent", agentID), zap.Error(err))
	} else if len(tasks) > 0 {
		t := tasks[0]
		if err := s.env.ClaimTask(ctx, t.ID, agentID); err != nil {
			// Lost the race to another agent; explore instead.
			s.logger.Info("task claim lost",
				zap.String("agent", agentID),
				zap.Int64("task", t.ID))
		} else {
			goal = t.Description
			taskID = t.ID
			s.publish(ctx, Event{Type: EventTaskClaimed, AgentID: agentID, TaskID: t.ID, Iteration: iteration})
		}
	}

	runner := s.factory(agentID)
	if err := runner.Begin(ctx, goal); err != nil {
		s.logger.Error("agent begin failed",
			zap.String("agent", agentID), zap.Error(err))
		s.publish(ctx, Event{Type: EventAgentFailed, AgentID: agentID, Iteration: iteration, Detail: err.Error()})
		return
	}
	if err := runner.Run(ctx, s.cfg.MaxCycles); err != nil {
		s.logger.Error("agent run failed",
			zap.String("agent", agentID), zap.Error(err))
		s.publish(ctx, Event{Type: EventAgentFailed, AgentID: agentID, Iteration: iteration, Detail: err.Error()})
		// Fall through: the claim is still closed out below.
	}

	if taskID != 0 {
		if err := s.env.CompleteTask(ctx, taskID, agentID); err != nil {
			if errors.Is(err, swarm.ErrTaskNotOwned) {
				s.logger.Info("task completion dropped, claim not held",
					zap.String("agent", agentID),
					zap.Int64("task", taskID))
			} else {
				s.logger.Warn("task completion failed",
					zap.String("agent", agentID),
					zap.Int64("task", taskID),
					zap.Error(err))
			}
		} else {
			s.publish(ctx, Event{Type: EventTaskCompleted, AgentID: agentID, TaskID: taskID, Iteration: iteration})
		}
	}

	if err := s.env.ReinforceConcept(ctx, goal, 1.0); err != nil {
		s.logger.Warn("goal reinforcement failed",
			zap.String("agent", agentID), zap.Error(err))
	}
}

func (s *Swarm) logSwarmState(ctx context.Context) {
	concepts, err := s.env.StrongestConcepts(ctx, 5)
	if err != nil {
		return
	}
	fields := make([]zap.Field, 0, len(concepts))
	for _, c := range concepts {
		fields = append(fields, zap.Float64(c.Name, c.Pheromone))
	}
	s.logger.Info("strongest concepts", fields...)
}

func (s *Swarm) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Debug("event publish failed", zap.Error(err))
	}
}
