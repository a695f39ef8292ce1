// Package postgres implements storage.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/centrallog/internal/sequence"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	ids  sequence.Allocator
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	ids      sequence.Allocator
	maxConns int32
	minConns int32
}

// WithAllocator makes the store take ids from a instead of the
// sequences table.
func WithAllocator(a sequence.Allocator) Option {
	return func(o *options) { o.ids = a }
}

// WithPoolSize overrides the connection pool bounds.
func WithPoolSize(minConns, maxConns int32) Option {
	return func(o *options) {
		o.minConns = minConns
		o.maxConns = maxConns
	}
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	o := options{maxConns: 25, minConns: 2}
	for _, opt := range opts {
		opt(&o)
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = o.maxConns
	config.MinConns = o.minConns
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, ids: o.ids, now: time.Now}
	if s.ids == nil {
		s.ids = NewSequences(pool)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for health checks and tests.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
