package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Index is the long-term free-text memory store. Records are append-only
// and retrieved by case-insensitive substring match, newest first.
type Index struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewIndex creates an Index over the shared connection pool.
func NewIndex(db *pgxpool.Pool, logger *zap.Logger) *Index {
	return &Index{db: db, logger: logger}
}

// Append stores a new memory record.
func (ix *Index) Append(ctx context.Context, content string) error {
	if content == "" {
		return fmt.Errorf("append memory: empty content")
	}
	if _, err := ix.db.Exec(ctx,
		`INSERT INTO memories (content) VALUES ($1)`, content); err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	ix.logger.Debug("memory appended", zap.Int("len", len(content)))
	return nil
}

// Search returns up to limit memory contents matching the query, newest
// first. An empty query returns the most recent records.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := ix.db.Query(ctx, `
		SELECT content
		FROM memories
		WHERE $1 = '' OR content ILIKE '%' || $1 || '%'
		ORDER BY ts DESC, id DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var memories []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, content)
	}
	return memories, rows.Err()
}
