package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequences allocates ids from the sequences table with a single atomic
// upsert per call.
type Sequences struct {
	pool *pgxpool.Pool
}

func NewSequences(pool *pgxpool.Pool) *Sequences {
	return &Sequences{pool: pool}
}

func (s *Sequences) Next(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`

	var value int64
	if err := s.pool.QueryRow(ctx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}
