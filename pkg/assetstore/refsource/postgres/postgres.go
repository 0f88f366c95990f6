// Package postgres reads live asset references from a PostgreSQL record store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/refsource"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source implements assetstore.ReferenceSource over PostgreSQL.
type Source struct {
	db   Querier
	pool *pgxpool.Pool
	opts refsource.Options
}

// New wraps an existing connection or pool.
func New(db Querier, opts ...refsource.Option) *Source {
	return &Source{db: db, opts: refsource.Apply(opts...)}
}

// Open creates a pool for databaseURL. The returned Source owns the pool.
func Open(ctx context.Context, databaseURL string, opts ...refsource.Option) (*Source, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reference database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping reference database: %w", err)
	}
	s := New(pool, opts...)
	s.pool = pool
	return s, nil
}

// LiveDigests runs the reference query and returns every valid digest.
func (s *Source) LiveDigests(ctx context.Context) (digest.Set, error) {
	rows, err := s.db.Query(ctx, s.opts.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[*string])
	if err != nil {
		return nil, fmt.Errorf("failed to read references: %w", err)
	}

	b := refsource.NewBuilder()
	for _, v := range values {
		b.Add(v)
	}
	return b.Finish(s.opts.Logger, "postgres"), nil
}

// Close closes the pool if the Source opened it.
func (s *Source) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var _ assetstore.ReferenceSource = (*Source)(nil)
