package swarm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pruneThreshold is the pheromone level below which a concept is removed
// during evaporation.
const pruneThreshold = 0.01

var (
	// ErrTaskNotOwned is returned when a completion is attempted by an
	// agent that does not hold the task's claim. Informational: no state
	// changed, the caller simply drops the claim.
	ErrTaskNotOwned = errors.New("task not owned by agent")

	// ErrTaskUnavailable is returned when a claim races with another agent
	// and loses, or the task id does not exist in pending state.
	ErrTaskUnavailable = errors.New("task not available for claim")
)

// Environment is the shared stigmergic substrate: pheromone-weighted
// concepts, an append-only fact ledger, and a claimable task queue.
// Every operation is a single statement or transaction against Postgres,
// so it is safe under concurrent calls from any number of agents.
type Environment struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewEnvironment creates an Environment over the shared connection pool.
func NewEnvironment(db *pgxpool.Pool, logger *zap.Logger) *Environment {
	return &Environment{db: db, logger: logger}
}

// ReinforceConcept adds weight to a concept's pheromone, creating the
// concept on first reinforcement. The upsert is row-atomic.
func (e *Environment) ReinforceConcept(ctx context.Context, name string, weight float64) error {
	if name == "" {
		return fmt.Errorf("reinforce concept: empty name")
	}
	if weight <= 0 {
		return fmt.Errorf("reinforce concept %q: weight must be positive, got %v", name, weight)
	}

	_, err := e.db.Exec(ctx, `
		INSERT INTO concepts (name, pheromone, last_reinforced)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			pheromone = concepts.pheromone + EXCLUDED.pheromone,
			last_reinforced = now()`,
		name, weight,
	)
	if err != nil {
		return fmt.Errorf("reinforce concept %q: %w", name, err)
	}
	e.logger.Debug("reinforced concept",
		zap.String("concept", name),
		zap.Float64("weight", weight))
	return nil
}

// StrongestConcepts returns up to limit concepts ordered by descending
// pheromone. Ties break by name so results are stable. Concepts with
// non-positive pheromone are excluded.
func (e *Environment) StrongestConcepts(ctx context.Context, limit int) ([]Concept, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := e.db.Query(ctx, `
		SELECT name, pheromone, last_reinforced
		FROM concepts
		WHERE pheromone > 0
		ORDER BY pheromone DESC, name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("strongest concepts: %w", err)
	}
	defer rows.Close()

	var concepts []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.Name, &c.Pheromone, &c.LastReinforced); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

// Evaporate multiplies every pheromone by (1-rate) and prunes concepts
// that fall below the removal threshold. Both steps run in one
// transaction so a partial decay is never observable. Returns the number
// of concepts pruned.
func (e *Environment) Evaporate(ctx context.Context, rate float64) (int, error) {
	if rate <= 0 || rate >= 1 {
		return 0, fmt.Errorf("evaporate: rate must be in (0,1), got %v", rate)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("evaporate: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE concepts SET pheromone = pheromone * $1`, 1-rate); err != nil {
		return 0, fmt.Errorf("evaporate: decay: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM concepts WHERE pheromone < $1`, pruneThreshold)
	if err != nil {
		return 0, fmt.Errorf("evaporate: prune: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("evaporate: commit: %w", err)
	}

	pruned := int(tag.RowsAffected())
	e.logger.Debug("evaporated pheromones",
		zap.Float64("rate", rate),
		zap.Int("pruned", pruned))
	return pruned, nil
}
