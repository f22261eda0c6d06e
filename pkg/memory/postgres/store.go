// Package postgres provides a PostgreSQL/pgvector implementation of
// memory.Index.
//
// Items live in a single memory_items table. Insertion order is the BIGSERIAL
// seq column, which drives eviction; similarity search uses an HNSW index
// with cosine distance. [Migrate] installs the pgvector extension via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	idx, err := postgres.NewIndex(ctx, dsn, 384)
//	if err != nil { … }
//	mem := memory.New(idx, embedder)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/talkbuddy/pkg/memory"
)

var _ memory.Index = (*Index)(nil)

// Index is a memory.Index backed by PostgreSQL. All methods are safe for
// concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// NewIndex connects to dsn, registers pgvector types on every connection and
// runs [Migrate].
func NewIndex(ctx context.Context, dsn string, embeddingDimensions int) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres index: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres index: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres index: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres index: migrate: %w", err)
	}

	return &Index{pool: pool}, nil
}

// Insert implements memory.Index.
func (x *Index) Insert(ctx context.Context, item memory.Item) error {
	const q = `
		INSERT INTO memory_items (id, text, embedding, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := x.pool.Exec(ctx, q,
		item.ID,
		item.Text,
		pgvector.NewVector(item.Embedding),
		item.Confidence,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres index: insert: %w", err)
	}
	return nil
}

// Count implements memory.Index.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, `SELECT count(*) FROM memory_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres index: count: %w", err)
	}
	return n, nil
}

// DeleteOldest implements memory.Index.
func (x *Index) DeleteOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	const q = `
		DELETE FROM memory_items
		WHERE seq IN (SELECT seq FROM memory_items ORDER BY seq LIMIT $1)`

	if _, err := x.pool.Exec(ctx, q, n); err != nil {
		return fmt.Errorf("postgres index: delete oldest: %w", err)
	}
	return nil
}

// Nearest implements memory.Index. Results are ordered by ascending cosine
// distance (most similar first).
func (x *Index) Nearest(ctx context.Context, embedding []float32, k int) ([]memory.Match, error) {
	if k <= 0 {
		return []memory.Match{}, nil
	}
	const q = `
		SELECT id, text, embedding, confidence, created_at,
		       embedding <=> $1 AS distance
		FROM   memory_items
		ORDER  BY distance
		LIMIT  $2`

	rows, err := x.pool.Query(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("postgres index: nearest: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Match, error) {
		var (
			m   memory.Match
			vec pgvector.Vector
		)
		if err := row.Scan(
			&m.Item.ID,
			&m.Item.Text,
			&vec,
			&m.Item.Confidence,
			&m.Item.CreatedAt,
			&m.Distance,
		); err != nil {
			return memory.Match{}, err
		}
		m.Item.Embedding = vec.Slice()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres index: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.Match{}
	}
	return results, nil
}

// Clear implements memory.Index.
func (x *Index) Clear(ctx context.Context) error {
	if _, err := x.pool.Exec(ctx, `TRUNCATE memory_items`); err != nil {
		return fmt.Errorf("postgres index: clear: %w", err)
	}
	return nil
}

// Ping checks connectivity; used by the readiness probe.
func (x *Index) Ping(ctx context.Context) error {
	return x.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (x *Index) Close() error {
	x.pool.Close()
	return nil
}
