package swarm

import (
	"context"
	"fmt"
)

// AddFact appends a discovery to the fact ledger. Facts are never
// mutated or deleted.
func (e *Environment) AddFact(ctx context.Context, content, sourceAgentID string) (int64, error) {
	if content == "" {
		return 0, fmt.Errorf("add fact: empty content")
	}

	var id int64
	err := e.db.QueryRow(ctx, `
		INSERT INTO facts (content, source_agent_id)
		VALUES ($1, $2)
		RETURNING id`,
		content, sourceAgentID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add fact: %w", err)
	}
	return id, nil
}

// Facts returns recent facts, newest first. A non-empty query filters by
// case-insensitive substring match on content.
func (e *Environment) Facts(ctx context.Context, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := e.db.Query(ctx, `
		SELECT id, content, source_agent_id, ts
		FROM facts
		WHERE $1 = '' OR content ILIKE '%' || $1 || '%'
		ORDER BY ts DESC, id DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.Content, &f.SourceAgentID, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
